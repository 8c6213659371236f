// README: In-memory availability index; linear scan is fine at city-fleet scale.
package driver

import (
	"context"
	"sort"
	"sync"
	"time"

	"rideflow/internal/geo"
	"rideflow/internal/types"
)

// MemoryIndex keeps every snapshot under one mutex, which makes the
// claim compare-and-swap trivially atomic.
type MemoryIndex struct {
	mu      sync.Mutex
	drivers map[types.ID]*Snapshot
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{drivers: make(map[types.ID]*Snapshot)}
}

func (m *MemoryIndex) Upsert(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.drivers[snap.DriverID]; ok {
		// Position updates must not disturb an in-flight claim.
		snap.ClaimedBy = cur.ClaimedBy
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	m.drivers[snap.DriverID] = &snap
	return nil
}

// UpdatePosition applies a high-frequency position sample without touching
// rating, online state, or the claim.
func (m *MemoryIndex) UpdatePosition(_ context.Context, driverID types.ID, pos types.Point, headingDeg, speedKmh float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.drivers[driverID]
	if !ok {
		m.drivers[driverID] = &Snapshot{
			DriverID:   driverID,
			Position:   pos,
			HeadingDeg: headingDeg,
			SpeedKmh:   speedKmh,
			UpdatedAt:  time.Now(),
		}
		return nil
	}
	cur.Position = pos
	cur.HeadingDeg = headingDeg
	cur.SpeedKmh = speedKmh
	cur.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryIndex) SetOnline(_ context.Context, driverID types.ID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.drivers[driverID]
	if !ok {
		m.drivers[driverID] = &Snapshot{DriverID: driverID, Online: online, UpdatedAt: time.Now()}
		return nil
	}
	cur.Online = online
	cur.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryIndex) QueryNearby(_ context.Context, center types.Point, radiusKm float64, exclude map[types.ID]struct{}) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Candidate
	for id, d := range m.drivers {
		if !d.Online || d.ClaimedBy != nil {
			continue
		}
		if _, skip := exclude[id]; skip {
			continue
		}
		dist := geo.HaversineKm(center, d.Position)
		if dist > radiusKm {
			continue
		}
		out = append(out, Candidate{
			DriverID:   id,
			Position:   d.Position,
			DistanceKm: dist,
			Rating:     d.Rating,
		})
	}

	// Rating pre-sort, then a stable distance sort: equal-distance
	// candidates come out highest-rated first.
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	geo.SortByDistance(out, func(c Candidate) float64 { return c.DistanceKm })
	return out, nil
}

func (m *MemoryIndex) Claim(_ context.Context, driverID, requestID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drivers[driverID]
	if !ok || !d.Online || d.ClaimedBy != nil {
		return false, nil
	}
	rid := requestID
	d.ClaimedBy = &rid
	return true, nil
}

func (m *MemoryIndex) Release(_ context.Context, driverID, requestID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drivers[driverID]
	if !ok || d.ClaimedBy == nil || *d.ClaimedBy != requestID {
		return nil
	}
	d.ClaimedBy = nil
	return nil
}

// Get returns a copy of the driver's snapshot, for handlers and tests.
func (m *MemoryIndex) Get(driverID types.ID) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drivers[driverID]
	if !ok {
		return Snapshot{}, false
	}
	return *d, true
}
