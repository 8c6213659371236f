// README: Fare rate definitions and the fare estimate value object.
package pricing

import "rideflow/internal/types"

// Rate is the per-vehicle-class tariff. Amounts are in the currency's
// minor unit: BaseFare flat, PerKm per kilometre, PerMin per minute.
type Rate struct {
	VehicleClass string
	BaseFare     int64
	PerKm        int64
	PerMin       int64
	Currency     string
}

// Request carries either precomputed distance/duration or raw coordinates;
// when DistanceKm is zero the service derives both from the points.
type Request struct {
	Pickup       types.Point
	Drop         types.Point
	DistanceKm   float64
	DurationMin  float64
	VehicleClass string
	// DemandFactor is the opaque external demand signal, >= 1.0 under
	// normal supply. The service clamps it to [1.0, MaxSurge].
	DemandFactor float64
}

// Estimate is a pure value object; it is never persisted.
type Estimate struct {
	BasePrice       types.Money
	DistanceCharge  types.Money
	TimeCharge      types.Money
	SurgeMultiplier float64
	SurgeReason     string
	EstimatedPrice  types.Money
	DistanceKm      float64
	DurationMin     float64
}

// SurgeReasonHighDemand is set whenever the clamped multiplier exceeds 1.0.
const SurgeReasonHighDemand = "High Demand"

var defaultRates = map[string]Rate{
	"car":  {VehicleClass: "car", BaseFare: 5000, PerKm: 1200, PerMin: 200, Currency: "INR"},
	"auto": {VehicleClass: "auto", BaseFare: 3000, PerKm: 1000, PerMin: 150, Currency: "INR"},
	"bike": {VehicleClass: "bike", BaseFare: 2000, PerKm: 700, PerMin: 100, Currency: "INR"},
}
