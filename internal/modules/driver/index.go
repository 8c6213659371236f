// README: Driver availability index contract and snapshot model.
package driver

import (
	"context"
	"time"

	"rideflow/internal/types"
)

// Snapshot is the last-known state of one driver, last-write-wins per
// driver. ClaimedBy is the concurrency guard: at most one non-terminal
// request holds a given driver's claim at any time.
type Snapshot struct {
	DriverID   types.ID
	Position   types.Point
	HeadingDeg float64
	SpeedKmh   float64
	Rating     float64
	Online     bool
	ClaimedBy  *types.ID
	UpdatedAt  time.Time
}

// Candidate is a query result row, ordered by distance ascending with
// rating descending as the tie-break.
type Candidate struct {
	DriverID   types.ID
	Position   types.Point
	DistanceKm float64
	Rating     float64
}

// Index is the queryable set of online drivers shared by all active
// requests. Claim must be a single compare-and-swap: it succeeds only if
// the driver was unclaimed. Release is a no-op unless requestID still
// holds the claim.
type Index interface {
	Upsert(ctx context.Context, snap Snapshot) error
	UpdatePosition(ctx context.Context, driverID types.ID, pos types.Point, headingDeg, speedKmh float64) error
	SetOnline(ctx context.Context, driverID types.ID, online bool) error
	QueryNearby(ctx context.Context, center types.Point, radiusKm float64, exclude map[types.ID]struct{}) ([]Candidate, error)
	Claim(ctx context.Context, driverID, requestID types.ID) (bool, error)
	Release(ctx context.Context, driverID, requestID types.ID) error
}
