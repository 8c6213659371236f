// README: Matching engine; owns the request lifecycle, search rounds, claims, and timers.
package request

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rideflow/internal/config"
	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/geofence"
	"rideflow/internal/modules/pricing"
	"rideflow/internal/modules/promo"
	"rideflow/internal/notify"
	"rideflow/internal/types"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrStaleRequest      = errors.New("request already in a terminal state")
	ErrNoDriverAvailable = errors.New("no drivers available")
	// ErrClaimConflict is internal: a lost claim race advances the search
	// to the next candidate and is never surfaced to callers.
	ErrClaimConflict  = errors.New("driver claimed by another request")
	ErrNotFound       = errors.New("ride request not found")
	ErrConflict       = errors.New("request state conflict")
	ErrActiveRequest  = errors.New("passenger has an active request")
	ErrBadRequest     = errors.New("bad request")
	ErrDriverMismatch = errors.New("request is not matched to this driver")
)

// Clock abstracts time for the engine's timers so tests can run with
// millisecond settings without touching the wall clock API directly.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func SystemClock() Clock { return systemClock{} }

type FareEstimator interface {
	Estimate(ctx context.Context, req pricing.Request) (pricing.Estimate, error)
}

type PromoValidator interface {
	Validate(ctx context.Context, code string, userID types.ID, fare types.Money, vehicleClass string) (promo.Validation, error)
}

type EngineDeps struct {
	Repo     Repo
	Index    driver.Index
	Fares    FareEstimator
	Promos   PromoValidator
	Notifier notify.Notifier
	Log      *zap.Logger
	Clock    Clock
	Matching config.MatchingConfig
	Geofence config.GeofenceConfig
}

// Engine is the single mutator of ride requests. Transitions for one
// request are serialized on a per-request mutex; the driver index is the
// only state shared between requests.
type Engine struct {
	repo        Repo
	index       driver.Index
	fares       FareEstimator
	promos      PromoValidator
	notifier    notify.Notifier
	log         *zap.Logger
	clock       Clock
	cfg         config.MatchingConfig
	geofenceCfg config.GeofenceConfig

	mu     sync.Mutex
	active map[types.ID]*activeRequest

	subMu  sync.Mutex
	subs   map[types.ID]map[int]func(Update)
	subSeq int

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// activeRequest is the in-memory runtime for one non-terminal request.
// mu serializes transitions; whichever caller takes it first wins.
type activeRequest struct {
	mu             sync.Mutex
	searchDeadline time.Time
	rejected       map[types.ID]struct{}
	cancelSearch   context.CancelFunc
	searchGen      int
	acceptCancel   chan struct{}
	monitor        *geofence.Monitor
	matchedDriver  types.ID
}

func NewEngine(d EngineDeps) *Engine {
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		repo:        d.Repo,
		index:       d.Index,
		fares:       d.Fares,
		promos:      d.Promos,
		notifier:    d.Notifier,
		log:         d.Log,
		clock:       d.Clock,
		cfg:         d.Matching,
		geofenceCfg: d.Geofence,
		active:      make(map[types.ID]*activeRequest),
		subs:        make(map[types.ID]map[int]func(Update)),
		baseCtx:     ctx,
		stop:        cancel,
	}
}

// Close cancels every search loop and timer and waits for them to drain.
func (e *Engine) Close() {
	e.stop()
	e.wg.Wait()
}

type CreateCommand struct {
	PassengerID  types.ID
	Pickup       Stop
	Drop         Stop
	VehicleClass string
	DemandFactor float64
	PromoCode    string
	ScheduledAt  *time.Time
}

type AcceptCommand struct {
	RequestID types.ID
	DriverID  types.ID
}

type RejectCommand struct {
	RequestID types.ID
	DriverID  types.ID
}

type StartCommand struct {
	RequestID types.ID
	DriverID  types.ID
}

type CompleteCommand struct {
	RequestID types.ID
	DriverID  types.ID
}

type CancelCommand struct {
	RequestID types.ID
	ActorType string
	Reason    string
}

type ReportPositionCommand struct {
	DriverID   types.ID
	RequestID  types.ID
	Position   types.Point
	HeadingDeg float64
	SpeedKmh   float64
}

// Create persists the request and starts its search loop. The fare is
// estimated up front; an invalid promo code rejects the whole create.
func (e *Engine) Create(ctx context.Context, cmd CreateCommand) (*RideRequest, error) {
	if cmd.PassengerID == "" || cmd.VehicleClass == "" {
		return nil, ErrBadRequest
	}
	if cmd.Pickup.Point == cmd.Drop.Point {
		return nil, ErrBadRequest
	}
	active, err := e.repo.HasActiveByPassenger(ctx, cmd.PassengerID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActiveRequest
	}

	est, err := e.fares.Estimate(ctx, pricing.Request{
		Pickup:       cmd.Pickup.Point,
		Drop:         cmd.Drop.Point,
		VehicleClass: cmd.VehicleClass,
		DemandFactor: cmd.DemandFactor,
	})
	if err != nil {
		return nil, err
	}

	discount := types.Money{Currency: est.EstimatedPrice.Currency}
	if cmd.PromoCode != "" {
		if e.promos == nil {
			return nil, fmt.Errorf("%w: promo codes not supported", promo.ErrInvalidPromoCode)
		}
		v, err := e.promos.Validate(ctx, cmd.PromoCode, cmd.PassengerID, est.EstimatedPrice, cmd.VehicleClass)
		if err != nil {
			return nil, err
		}
		if !v.Valid {
			return nil, fmt.Errorf("%w: %s", promo.ErrInvalidPromoCode, v.Message)
		}
		discount = v.Discount
	}

	now := e.clock.Now()
	status := StatusPending
	r := &RideRequest{
		ID:             types.ID(uuid.NewString()),
		PassengerID:    cmd.PassengerID,
		Status:         status,
		Pickup:         cmd.Pickup,
		Drop:           cmd.Drop,
		VehicleClass:   cmd.VehicleClass,
		Fare:           est.EstimatedPrice,
		DiscountAmount: discount,
		PromoCode:      cmd.PromoCode,
		DistanceKm:     est.DistanceKm,
		DurationMin:    est.DurationMin,
		SearchRadiusKm: e.cfg.InitialRadiusKm,
		ScheduledAt:    cmd.ScheduledAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	_ = e.repo.AppendEvent(ctx, &Event{
		RequestID:  r.ID,
		FromStatus: StatusNone,
		ToStatus:   status,
		ActorType:  "passenger",
		ActorID:    &cmd.PassengerID,
		CreatedAt:  now,
	})

	ar := e.lockFor(r.ID)
	ar.mu.Lock()
	e.spawnSearch(ar, r.ID)
	ar.mu.Unlock()

	return r, nil
}

func (e *Engine) Get(ctx context.Context, id types.ID) (*RideRequest, error) {
	return e.repo.Get(ctx, id)
}

// Accept confirms the matched driver within the accept window.
func (e *Engine) Accept(ctx context.Context, cmd AcceptCommand) error {
	ar := e.lockFor(cmd.RequestID)
	ar.mu.Lock()
	defer ar.mu.Unlock()

	cur, err := e.repo.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return ErrStaleRequest
	}
	if cur.Status != StatusMatched {
		return ErrInvalidTransition
	}
	if cur.DriverID == nil || *cur.DriverID != cmd.DriverID {
		return ErrDriverMismatch
	}

	updated, err := e.applyTransition(ctx, cur, StatusAccepted, Changes{}, "driver", &cmd.DriverID)
	if err != nil {
		return err
	}
	e.stopAcceptTimer(ar)

	ar.matchedDriver = cmd.DriverID
	ar.monitor = geofence.NewMonitor(e.geofenceCfg, e.geofenceEmit(updated.PassengerID))
	ar.monitor.Attach(updated.ID, updated.Pickup.Point, updated.Drop.Point)

	e.sendNotify(updated.PassengerID, "Ride confirmed",
		fmt.Sprintf("Your driver is on the way to %s", updated.Pickup.Address),
		map[string]any{"request_id": string(updated.ID), "driver_id": string(cmd.DriverID)})
	return nil
}

// Reject releases the driver's claim and resumes the search without
// resetting the radius or the elapsed-time clock.
func (e *Engine) Reject(ctx context.Context, cmd RejectCommand) error {
	ar := e.lockFor(cmd.RequestID)
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return e.revertToSearching(ctx, ar, cmd.RequestID, cmd.DriverID, "driver")
}

// Start marks pickup confirmed and the trip underway.
func (e *Engine) Start(ctx context.Context, cmd StartCommand) error {
	ar := e.lockFor(cmd.RequestID)
	ar.mu.Lock()
	defer ar.mu.Unlock()

	cur, err := e.repo.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return ErrStaleRequest
	}
	if cur.DriverID == nil || *cur.DriverID != cmd.DriverID {
		return ErrDriverMismatch
	}
	_, err = e.applyTransition(ctx, cur, StatusInProgress, Changes{}, "driver", &cmd.DriverID)
	return err
}

// Complete finishes the trip, frees the driver, and retires the request.
func (e *Engine) Complete(ctx context.Context, cmd CompleteCommand) error {
	ar := e.lockFor(cmd.RequestID)
	ar.mu.Lock()
	defer ar.mu.Unlock()

	cur, err := e.repo.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return ErrStaleRequest
	}
	if cur.DriverID == nil || *cur.DriverID != cmd.DriverID {
		return ErrDriverMismatch
	}
	// A terminal row holds no driver; the audit trail keeps who drove it.
	updated, err := e.applyTransition(ctx, cur, StatusCompleted, Changes{ClearDriver: true}, "driver", &cmd.DriverID)
	if err != nil {
		return err
	}

	_ = e.index.Release(ctx, cmd.DriverID, cmd.RequestID)
	e.sendNotify(updated.PassengerID, "Trip completed",
		fmt.Sprintf("Fare: %s", updated.Fare.String()),
		map[string]any{"request_id": string(updated.ID)})
	e.retire(updated.ID)
	return nil
}

// Cancel requires a reason and works from any non-terminal state except
// in_progress. A held driver claim is released.
func (e *Engine) Cancel(ctx context.Context, cmd CancelCommand) error {
	if cmd.Reason == "" {
		return ErrBadRequest
	}
	ar := e.lockFor(cmd.RequestID)
	ar.mu.Lock()
	defer ar.mu.Unlock()

	cur, err := e.repo.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return ErrStaleRequest
	}

	var actorID *types.ID
	if cmd.ActorType == "passenger" {
		actorID = &cur.PassengerID
	} else if cur.DriverID != nil {
		actorID = cur.DriverID
	}

	updated, err := e.applyTransition(ctx, cur, StatusCancelled,
		Changes{ClearDriver: true, CancelReason: &cmd.Reason}, cmd.ActorType, actorID)
	if err != nil {
		return err
	}

	if ar.cancelSearch != nil {
		ar.cancelSearch()
		ar.cancelSearch = nil
	}
	e.stopAcceptTimer(ar)
	if cur.DriverID != nil {
		_ = e.index.Release(ctx, *cur.DriverID, cmd.RequestID)
		if cmd.ActorType == "passenger" {
			e.sendNotify(*cur.DriverID, "Ride cancelled", cmd.Reason,
				map[string]any{"request_id": string(updated.ID)})
		}
	}
	if cmd.ActorType != "passenger" {
		e.sendNotify(updated.PassengerID, "Ride cancelled", cmd.Reason,
			map[string]any{"request_id": string(updated.ID)})
	}
	e.retire(updated.ID)
	return nil
}

// ReportDriverPosition feeds the availability index and, when the sample
// belongs to an active matched request, that request's geofence monitor.
func (e *Engine) ReportDriverPosition(ctx context.Context, cmd ReportPositionCommand) error {
	if cmd.DriverID == "" {
		return ErrBadRequest
	}
	if err := e.index.UpdatePosition(ctx, cmd.DriverID, cmd.Position, cmd.HeadingDeg, cmd.SpeedKmh); err != nil {
		return err
	}
	if cmd.RequestID == "" {
		return nil
	}

	e.mu.Lock()
	ar := e.active[cmd.RequestID]
	e.mu.Unlock()
	if ar == nil {
		return nil
	}

	ar.mu.Lock()
	monitor := ar.monitor
	matched := ar.matchedDriver
	ar.mu.Unlock()

	if monitor != nil && matched == cmd.DriverID {
		monitor.Observe(cmd.Position)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Search loop
// ---------------------------------------------------------------------------

// spawnSearch starts the search goroutine unless one from the current
// generation is already running. Caller holds ar.mu; the generation
// counter lets a finished loop's cleanup run late without suppressing a
// newly spawned one.
func (e *Engine) spawnSearch(ar *activeRequest, id types.ID) {
	if ar.cancelSearch != nil {
		ar.cancelSearch()
	}
	sctx, cancel := context.WithCancel(e.baseCtx)
	ar.cancelSearch = cancel
	ar.searchGen++
	gen := ar.searchGen
	e.wg.Add(1)
	go e.runSearch(sctx, ar, id, gen)
}

func (e *Engine) runSearch(ctx context.Context, ar *activeRequest, id types.ID, gen int) {
	defer e.wg.Done()
	defer func() {
		ar.mu.Lock()
		if ar.searchGen == gen && ar.cancelSearch != nil {
			ar.cancelSearch()
			ar.cancelSearch = nil
		}
		ar.mu.Unlock()
	}()

	if !e.beginSearching(ctx, ar, id) {
		return
	}

	for {
		if done := e.searchRound(ctx, ar, id); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(e.cfg.RoundInterval):
		}
	}
}

// beginSearching waits out the scheduled lead time, then moves a pending
// request into searching and arms the search deadline once.
func (e *Engine) beginSearching(ctx context.Context, ar *activeRequest, id types.ID) bool {
	cur, err := e.repo.Get(ctx, id)
	if err != nil {
		e.log.Error("search: load request", zap.String("request_id", string(id)), zap.Error(err))
		return false
	}
	if cur.Status.Terminal() {
		return false
	}

	if cur.ScheduledAt != nil {
		delay := cur.ScheduledAt.Sub(e.clock.Now()) - e.cfg.ScheduledLead
		if delay > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-e.clock.After(delay):
			}
		}
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	if ar.searchDeadline.IsZero() {
		ar.searchDeadline = e.clock.Now().Add(e.cfg.SearchCeiling)
	}
	if ar.rejected == nil {
		ar.rejected = make(map[types.ID]struct{})
	}

	cur, err = e.repo.Get(ctx, id)
	if err != nil {
		e.log.Error("search: reload request", zap.String("request_id", string(id)), zap.Error(err))
		return false
	}
	if cur.Status == StatusPending {
		if _, err := e.applyTransition(ctx, cur, StatusSearching, Changes{}, "system", nil); err != nil {
			return false
		}
	}
	return true
}

// searchRound runs one query/claim pass. It returns true when the loop
// should stop: matched, expired, cancelled, or no longer searching.
func (e *Engine) searchRound(ctx context.Context, ar *activeRequest, id types.ID) bool {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	cur, err := e.repo.Get(ctx, id)
	if err != nil {
		e.log.Error("search: load request", zap.String("request_id", string(id)), zap.Error(err))
		return false
	}
	if cur.Status != StatusSearching {
		return true
	}

	exclude := make(map[types.ID]struct{}, len(ar.rejected))
	for d := range ar.rejected {
		exclude[d] = struct{}{}
	}

	cands, err := e.index.QueryNearby(ctx, cur.Pickup.Point, cur.SearchRadiusKm, exclude)
	if err != nil {
		e.log.Error("search: query nearby", zap.String("request_id", string(id)), zap.Error(err))
		return false
	}

	for _, c := range cands {
		ok, err := e.index.Claim(ctx, c.DriverID, id)
		if err != nil {
			e.log.Error("search: claim", zap.String("driver_id", string(c.DriverID)), zap.Error(err))
			continue
		}
		if !ok {
			// Lost the race for this driver; advance to the next candidate.
			e.log.Debug("search: candidate unavailable",
				zap.String("driver_id", string(c.DriverID)), zap.Error(ErrClaimConflict))
			continue
		}

		driverID := c.DriverID
		updated, err := e.applyTransition(ctx, cur, StatusMatched, Changes{DriverID: &driverID}, "system", nil)
		if err != nil {
			_ = e.index.Release(ctx, driverID, id)
			if errors.Is(err, ErrStaleRequest) || errors.Is(err, ErrInvalidTransition) {
				return true
			}
			e.log.Error("search: transition to matched", zap.String("request_id", string(id)), zap.Error(err))
			return false
		}

		ar.matchedDriver = driverID
		e.startAcceptWindow(ar, id, driverID)
		e.sendNotify(driverID, "New ride request",
			fmt.Sprintf("Pickup at %s, %.1f km away", updated.Pickup.Address, c.DistanceKm),
			map[string]any{"request_id": string(id), "fare": updated.Fare.Amount})
		e.sendNotify(updated.PassengerID, "Driver found",
			"Waiting for the driver to confirm",
			map[string]any{"request_id": string(id), "driver_id": string(driverID)})
		return true
	}

	// Empty round: widen first; expiry is only evaluated at max radius.
	if cur.SearchRadiusKm < e.cfg.MaxRadiusKm {
		radius := cur.SearchRadiusKm + e.cfg.RadiusStepKm
		if radius > e.cfg.MaxRadiusKm {
			radius = e.cfg.MaxRadiusKm
		}
		ok, err := e.repo.UpdateStatus(ctx, id, StatusSearching, StatusSearching, cur.StatusVersion,
			Changes{SearchRadiusKm: &radius})
		if err != nil {
			e.log.Error("search: widen radius", zap.String("request_id", string(id)), zap.Error(err))
			return false
		}
		if ok {
			widened := *cur
			widened.SearchRadiusKm = radius
			widened.StatusVersion++
			widened.UpdatedAt = e.clock.Now()
			e.publish(&widened, StatusSearching, StatusSearching)
		}
		return false
	}

	if e.clock.Now().After(ar.searchDeadline) {
		updated, err := e.applyTransition(ctx, cur, StatusExpired, Changes{}, "system", nil)
		if err != nil {
			e.log.Error("search: expire", zap.String("request_id", string(id)), zap.Error(err))
			return true
		}
		e.log.Info("search: expired", zap.String("request_id", string(id)),
			zap.Error(ErrNoDriverAvailable))
		e.sendNotify(updated.PassengerID, "No drivers available",
			"We could not find a driver. Please try again.",
			map[string]any{"request_id": string(id)})
		e.retire(id)
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Accept window
// ---------------------------------------------------------------------------

func (e *Engine) startAcceptWindow(ar *activeRequest, id, driverID types.ID) {
	cancel := make(chan struct{})
	ar.acceptCancel = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-cancel:
		case <-e.baseCtx.Done():
		case <-e.clock.After(e.cfg.AcceptWindow):
			e.acceptWindowExpired(id, driverID)
		}
	}()
}

func (e *Engine) stopAcceptTimer(ar *activeRequest) {
	if ar.acceptCancel != nil {
		close(ar.acceptCancel)
		ar.acceptCancel = nil
	}
}

func (e *Engine) acceptWindowExpired(id, driverID types.ID) {
	ar := e.lockFor(id)
	ar.mu.Lock()
	defer ar.mu.Unlock()

	if err := e.revertToSearching(e.baseCtx, ar, id, driverID, "system"); err != nil {
		// The driver responded or the passenger cancelled first; the
		// timer simply lost the race.
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrStaleRequest) &&
			!errors.Is(err, ErrDriverMismatch) {
			e.log.Error("accept window: revert", zap.String("request_id", string(id)), zap.Error(err))
		}
	}
}

// revertToSearching handles both driver rejection and accept-window
// timeout: the claim is released, the driver excluded from further
// rounds, and the search resumes with radius and deadline intact.
// Caller holds ar.mu.
func (e *Engine) revertToSearching(ctx context.Context, ar *activeRequest, id, driverID types.ID, actorType string) error {
	cur, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return ErrStaleRequest
	}
	if cur.Status != StatusMatched {
		return ErrInvalidTransition
	}
	if cur.DriverID == nil || *cur.DriverID != driverID {
		return ErrDriverMismatch
	}

	var actorID *types.ID
	if actorType == "driver" {
		actorID = &driverID
	}
	if _, err := e.applyTransition(ctx, cur, StatusSearching, Changes{ClearDriver: true}, actorType, actorID); err != nil {
		return err
	}

	_ = e.index.Release(ctx, driverID, id)
	if ar.rejected == nil {
		ar.rejected = make(map[types.ID]struct{})
	}
	ar.rejected[driverID] = struct{}{}
	ar.matchedDriver = ""
	e.stopAcceptTimer(ar)
	e.spawnSearch(ar, id)
	return nil
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// applyTransition validates the edge, performs the optimistic-lock write,
// appends the audit event, and publishes the update. Caller holds ar.mu.
func (e *Engine) applyTransition(ctx context.Context, cur *RideRequest, to Status, ch Changes, actorType string, actorID *types.ID) (*RideRequest, error) {
	if cur.Status.Terminal() {
		return nil, ErrStaleRequest
	}
	if !CanTransition(cur.Status, to) {
		return nil, ErrInvalidTransition
	}

	ok, err := e.repo.UpdateStatus(ctx, cur.ID, cur.Status, to, cur.StatusVersion, ch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	now := e.clock.Now()
	_ = e.repo.AppendEvent(ctx, &Event{
		RequestID:  cur.ID,
		FromStatus: cur.Status,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  now,
	})

	updated := *cur
	updated.Status = to
	updated.StatusVersion++
	updated.UpdatedAt = now
	if ch.ClearDriver {
		updated.DriverID = nil
	} else if ch.DriverID != nil {
		d := *ch.DriverID
		updated.DriverID = &d
	}
	if ch.SearchRadiusKm != nil {
		updated.SearchRadiusKm = *ch.SearchRadiusKm
	}
	if ch.CancelReason != nil {
		r := *ch.CancelReason
		updated.CancelReason = &r
	}
	switch to {
	case StatusMatched:
		updated.MatchedAt = &now
	case StatusAccepted:
		updated.AcceptedAt = &now
	case StatusInProgress:
		updated.StartedAt = &now
	case StatusCompleted:
		updated.CompletedAt = &now
	case StatusCancelled:
		updated.CancelledAt = &now
	}

	e.log.Info("transition",
		zap.String("request_id", string(cur.ID)),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(to)),
		zap.String("actor", actorType))
	e.publish(&updated, cur.Status, to)
	return &updated, nil
}

// lockFor returns the runtime entry for a request, creating it if absent.
func (e *Engine) lockFor(id types.ID) *activeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	ar, ok := e.active[id]
	if !ok {
		ar = &activeRequest{rejected: make(map[types.ID]struct{})}
		e.active[id] = ar
	}
	return ar
}

func (e *Engine) retire(id types.ID) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

func (e *Engine) geofenceEmit(passengerID types.ID) func(geofence.Event) {
	return func(ev geofence.Event) {
		var title, message string
		switch ev.Kind {
		case geofence.KindNearPickup:
			title = "Driver is nearby"
			message = fmt.Sprintf("Arriving in about %.0f min", ev.ETAMinutes)
		case geofence.KindArrivedPickup:
			title = "Driver has arrived"
			message = "Your driver is at the pickup point"
		case geofence.KindNearDrop:
			title = "Approaching drop-off"
			message = "You are almost there"
		default:
			return
		}
		e.sendNotify(passengerID, title, message, map[string]any{
			"request_id":  string(ev.RequestID),
			"event":       string(ev.Kind),
			"distance_km": ev.DistanceKm,
		})
	}
}

func (e *Engine) sendNotify(userID types.ID, title, message string, payload map[string]any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(e.baseCtx, userID, title, message, payload)
}

// StatusNone is only used in the audit trail for the creation event.
const StatusNone Status = "none"

// TODO: rehydrate non-terminal requests from the store on startup so a
// process restart does not strand in-flight searches.
