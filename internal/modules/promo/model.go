// README: Promo code definition and validation result.
package promo

import (
	"time"

	"rideflow/internal/types"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFlat    DiscountType = "flat"
)

type Code struct {
	Code         string
	Active       bool
	ExpiresAt    *time.Time
	DiscountType DiscountType
	// DiscountValue is a percentage for DiscountPercent (e.g. 20 for 20%)
	// and a minor-unit amount for DiscountFlat.
	DiscountValue int64
	MinFare       int64
	PerUserLimit  int
	// VehicleClasses restricts eligibility; empty means all classes.
	VehicleClasses []string
}

// Validation is a value object; validation never mutates redemption
// counters, so repeated calls are safe.
type Validation struct {
	Code     string
	Valid    bool
	Discount types.Money
	Message  string
}
