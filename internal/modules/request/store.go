// README: RideRequest store backed by PostgreSQL with optimistic-lock updates.
package request

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideflow/internal/types"
)

// Changes carries the per-transition field mutations applied alongside a
// status change. ClearDriver wins over DriverID.
type Changes struct {
	DriverID       *types.ID
	ClearDriver    bool
	SearchRadiusKm *float64
	CancelReason   *string
}

// Repo is the persistence boundary for the engine. Store implements it on
// pgx; tests use an in-memory implementation.
type Repo interface {
	Create(ctx context.Context, r *RideRequest) error
	Get(ctx context.Context, id types.ID) (*RideRequest, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, ch Changes) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	HasActiveByPassenger(ctx context.Context, passengerID types.ID) (bool, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, r *RideRequest) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_requests (
			id, passenger_id, driver_id, status, status_version,
			pickup_lat, pickup_lng, pickup_address,
			drop_lat, drop_lng, drop_address,
			vehicle_class, fare, discount_amount, currency, promo_code,
			distance_km, duration_min, search_radius_km,
			scheduled_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19,
			$20, $21, $21
		)`,
		string(r.ID),
		string(r.PassengerID),
		toStringPtr(r.DriverID),
		string(r.Status),
		r.StatusVersion,
		r.Pickup.Point.Lat, r.Pickup.Point.Lng, r.Pickup.Address,
		r.Drop.Point.Lat, r.Drop.Point.Lng, r.Drop.Address,
		r.VehicleClass,
		r.Fare.Amount,
		r.DiscountAmount.Amount,
		r.Fare.Currency,
		r.PromoCode,
		r.DistanceKm, r.DurationMin, r.SearchRadiusKm,
		r.ScheduledAt,
		r.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*RideRequest, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, passenger_id, driver_id, status, status_version,
		       pickup_lat, pickup_lng, pickup_address,
		       drop_lat, drop_lng, drop_address,
		       vehicle_class, fare, discount_amount, currency, promo_code,
		       distance_km, duration_min, search_radius_km,
		       scheduled_at, cancel_reason, created_at, updated_at,
		       matched_at, accepted_at, started_at, completed_at, cancelled_at
		FROM ride_requests
		WHERE id = $1`, string(id),
	)

	var r RideRequest
	var driverID, cancelReason sql.NullString
	var currency string
	var scheduledAt, matchedAt, acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.PassengerID, &driverID, &r.Status, &r.StatusVersion,
		&r.Pickup.Point.Lat, &r.Pickup.Point.Lng, &r.Pickup.Address,
		&r.Drop.Point.Lat, &r.Drop.Point.Lng, &r.Drop.Address,
		&r.VehicleClass, &r.Fare.Amount, &r.DiscountAmount.Amount, &currency, &r.PromoCode,
		&r.DistanceKm, &r.DurationMin, &r.SearchRadiusKm,
		&scheduledAt, &cancelReason, &r.CreatedAt, &r.UpdatedAt,
		&matchedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Fare.Currency = currency
	r.DiscountAmount.Currency = currency
	if driverID.Valid {
		d := types.ID(driverID.String)
		r.DriverID = &d
	}
	if cancelReason.Valid {
		r.CancelReason = &cancelReason.String
	}
	r.ScheduledAt = toTimePtr(scheduledAt)
	r.MatchedAt = toTimePtr(matchedAt)
	r.AcceptedAt = toTimePtr(acceptedAt)
	r.StartedAt = toTimePtr(startedAt)
	r.CompletedAt = toTimePtr(completedAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	return &r, nil
}

// UpdateStatus performs the optimistic-lock transition: the row is touched
// only if status and status_version still match what the caller read.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, ch Changes) (bool, error) {
	var driverID *string
	if ch.DriverID != nil {
		v := string(*ch.DriverID)
		driverID = &v
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE ride_requests
		SET status = $1,
		    status_version = status_version + 1,
		    updated_at = NOW(),
		    driver_id = CASE WHEN $2 THEN NULL ELSE COALESCE($3, driver_id) END,
		    search_radius_km = COALESCE($4, search_radius_km),
		    cancel_reason = COALESCE($5, cancel_reason),
		    matched_at = CASE WHEN $1 = 'matched' THEN NOW() ELSE matched_at END,
		    accepted_at = CASE WHEN $1 = 'accepted' THEN NOW() ELSE accepted_at END,
		    started_at = CASE WHEN $1 = 'in_progress' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $6 AND status = $7 AND status_version = $8`,
		string(to),
		ch.ClearDriver,
		driverID,
		ch.SearchRadiusKm,
		ch.CancelReason,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_request_events (
			request_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RequestID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *Store) HasActiveByPassenger(ctx context.Context, passengerID types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ride_requests
			WHERE passenger_id = $1
			  AND status IN ('pending','searching','matched','accepted','in_progress')
		)`, string(passengerID),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
