// README: Geofence monitor; evaluates driver positions against pickup/drop thresholds.
package geofence

import (
	"sync"
	"time"

	"rideflow/internal/config"
	"rideflow/internal/geo"
	"rideflow/internal/types"
)

type Kind string

const (
	KindNearPickup    Kind = "near_pickup"
	KindArrivedPickup Kind = "arrived_pickup"
	KindNearDrop      Kind = "near_drop"
)

// Event fires exactly once per kind per attached request, no matter how
// many samples land inside the threshold band.
type Event struct {
	RequestID  types.ID
	Kind       Kind
	DistanceKm float64
	ETAMinutes float64
	At         time.Time
}

// Monitor consumes one driver's position stream for one active request.
// Samples may arrive slightly out of order; correctness only depends on
// the notified flags being monotonic.
type Monitor struct {
	mu   sync.Mutex
	cfg  config.GeofenceConfig
	emit func(Event)

	requestID types.ID
	pickup    types.Point
	drop      types.Point
	attached  bool

	notifiedNearPickup    bool
	notifiedArrivedPickup bool
	notifiedNearDrop      bool
}

func NewMonitor(cfg config.GeofenceConfig, emit func(Event)) *Monitor {
	if cfg.NearbyKm <= 0 {
		cfg.NearbyKm = 0.5
	}
	if cfg.ArrivedKm <= 0 {
		cfg.ArrivedKm = 0.05
	}
	if cfg.AvgSpeedKmh <= 0 {
		cfg.AvgSpeedKmh = 30.0
	}
	return &Monitor{cfg: cfg, emit: emit}
}

// Attach binds the monitor to a request and resets the notified flags.
// Re-attaching to a new request is the only way flags reset.
func (m *Monitor) Attach(requestID types.ID, pickup, drop types.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestID = requestID
	m.pickup = pickup
	m.drop = drop
	m.attached = true
	m.notifiedNearPickup = false
	m.notifiedArrivedPickup = false
	m.notifiedNearDrop = false
}

// Observe evaluates one position sample and emits any newly crossed
// threshold events. Emission happens outside the lock.
func (m *Monitor) Observe(pos types.Point) {
	m.mu.Lock()
	if !m.attached {
		m.mu.Unlock()
		return
	}

	toPickup := geo.HaversineKm(pos, m.pickup)
	toDrop := geo.HaversineKm(pos, m.drop)
	now := time.Now()

	var fired []Event
	if !m.notifiedNearPickup && toPickup <= m.cfg.NearbyKm {
		m.notifiedNearPickup = true
		fired = append(fired, m.event(KindNearPickup, toPickup, now))
	}
	if !m.notifiedArrivedPickup && toPickup <= m.cfg.ArrivedKm {
		m.notifiedArrivedPickup = true
		fired = append(fired, m.event(KindArrivedPickup, toPickup, now))
	}
	if !m.notifiedNearDrop && toDrop <= m.cfg.NearbyKm {
		m.notifiedNearDrop = true
		fired = append(fired, m.event(KindNearDrop, toDrop, now))
	}
	emit := m.emit
	m.mu.Unlock()

	if emit == nil {
		return
	}
	for _, ev := range fired {
		emit(ev)
	}
}

func (m *Monitor) event(kind Kind, distanceKm float64, at time.Time) Event {
	return Event{
		RequestID:  m.requestID,
		Kind:       kind,
		DistanceKm: distanceKm,
		ETAMinutes: geo.ETAMinutes(distanceKm, m.cfg.AvgSpeedKmh),
		At:         at,
	}
}
