// README: Promo validation service; eligibility checks in order, first failure wins.
package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rideflow/internal/types"
)

var (
	ErrNotFound         = errors.New("promo code not found")
	ErrInvalidPromoCode = errors.New("invalid promo code")
)

// CodeSource is implemented by the pgx-backed Store. RedemptionCount covers
// the given user only; counters are incremented by the booking-confirmation
// step, never here.
type CodeSource interface {
	GetByCode(ctx context.Context, code string) (*Code, error)
	RedemptionCount(ctx context.Context, code string, userID types.ID) (int, error)
}

type Service struct {
	store CodeSource
	now   func() time.Time
}

func NewService(store CodeSource) *Service {
	return &Service{store: store, now: time.Now}
}

// Validate runs the eligibility chain: exists and active, not expired,
// per-user redemption limit, minimum fare, vehicle class. The first failed
// check short-circuits with a human-readable message. Store failures are
// propagated, rule failures are not errors.
func (s *Service) Validate(ctx context.Context, code string, userID types.ID, fare types.Money, vehicleClass string) (Validation, error) {
	invalid := func(msg string) Validation {
		return Validation{Code: code, Valid: false, Discount: types.Money{Currency: fare.Currency}, Message: msg}
	}

	c, err := s.store.GetByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return invalid("promo code not found"), nil
	}
	if err != nil {
		return Validation{}, err
	}
	if !c.Active {
		return invalid("promo code is no longer active"), nil
	}
	if c.ExpiresAt != nil && !s.now().Before(*c.ExpiresAt) {
		return invalid("promo code has expired"), nil
	}

	if c.PerUserLimit > 0 {
		used, err := s.store.RedemptionCount(ctx, code, userID)
		if err != nil {
			return Validation{}, err
		}
		if used >= c.PerUserLimit {
			return invalid("promo code redemption limit reached"), nil
		}
	}

	if fare.Amount < c.MinFare {
		return invalid(fmt.Sprintf("fare below the %d.%02d %s minimum for this code",
			c.MinFare/100, c.MinFare%100, fare.Currency)), nil
	}

	if len(c.VehicleClasses) > 0 && !contains(c.VehicleClasses, vehicleClass) {
		return invalid("promo code not valid for this vehicle class"), nil
	}

	discount := c.discountOn(fare)
	return Validation{
		Code:     code,
		Valid:    true,
		Discount: discount,
		Message:  "promo code applied",
	}, nil
}

// discountOn never exceeds the fare.
func (c *Code) discountOn(fare types.Money) types.Money {
	var amount int64
	switch c.DiscountType {
	case DiscountPercent:
		amount = fare.Amount * c.DiscountValue / 100
	default:
		amount = c.DiscountValue
	}
	if amount > fare.Amount {
		amount = fare.Amount
	}
	if amount < 0 {
		amount = 0
	}
	return types.Money{Amount: amount, Currency: fare.Currency}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
