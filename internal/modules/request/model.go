// README: RideRequest aggregate, status graph, and transition audit events.
package request

import (
	"time"

	"rideflow/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusSearching  Status = "searching"
	StatusMatched    Status = "matched"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// Stop is a pickup or drop-off point with its display address.
type Stop struct {
	Point   types.Point
	Address string
}

type RideRequest struct {
	ID             types.ID
	PassengerID    types.ID
	DriverID       *types.ID
	Status         Status
	StatusVersion  int
	Pickup         Stop
	Drop           Stop
	VehicleClass   string
	Fare           types.Money
	DiscountAmount types.Money
	PromoCode      string
	DistanceKm     float64
	DurationMin    float64
	SearchRadiusKm float64
	ScheduledAt    *time.Time
	CancelReason   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	MatchedAt      *time.Time
	AcceptedAt     *time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
}

// Event is one row of the transition audit trail.
type Event struct {
	ID         int64
	RequestID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the request state flow (diagram) as code.
// pending covers the wait before a scheduled search starts; matched can
// fall back to searching on driver reject or accept-window timeout.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusSearching, StatusMatched, StatusCancelled},
	StatusSearching:  {StatusMatched, StatusExpired, StatusCancelled},
	StatusMatched:    {StatusAccepted, StatusSearching, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
