// README: Pricing service computes demand-sensitive fare estimates.
package pricing

import (
	"context"
	"errors"
	"math"

	"rideflow/internal/config"
	"rideflow/internal/geo"
	"rideflow/internal/types"
)

var ErrUnknownVehicleClass = errors.New("unknown vehicle class")

// RateSource supplies the tariff for a vehicle class. The pgx-backed Store
// implements it; tests pass nil to fall back to the built-in rates.
type RateSource interface {
	GetRate(ctx context.Context, vehicleClass string) (Rate, error)
}

type Service struct {
	rates RateSource
	cfg   config.PricingConfig
}

// defaultAssumedSpeedKmh covers a zero-value config; city traffic average.
const defaultAssumedSpeedKmh = 30.0

func NewService(rates RateSource, cfg config.PricingConfig) *Service {
	if cfg.MaxSurge < 1.0 {
		cfg.MaxSurge = 1.0
	}
	if cfg.AssumedSpeedKmh <= 0 {
		cfg.AssumedSpeedKmh = defaultAssumedSpeedKmh
	}
	return &Service{rates: rates, cfg: cfg}
}

// Estimate is deterministic: identical inputs always yield identical output.
//
//	estimated = round((base + distance*perKm + duration*perMin) * surge)
//
// where surge is the demand factor clamped to [1.0, MaxSurge].
func (s *Service) Estimate(ctx context.Context, req Request) (Estimate, error) {
	rate, err := s.rateFor(ctx, req.VehicleClass)
	if err != nil {
		return Estimate{}, err
	}

	distanceKm := req.DistanceKm
	durationMin := req.DurationMin
	if distanceKm == 0 {
		distanceKm = geo.HaversineKm(req.Pickup, req.Drop)
	}
	if durationMin == 0 {
		durationMin = geo.ETAMinutes(distanceKm, s.cfg.AssumedSpeedKmh)
	}

	surge := req.DemandFactor
	if surge < 1.0 {
		surge = 1.0
	}
	if surge > s.cfg.MaxSurge {
		surge = s.cfg.MaxSurge
	}

	currency := rate.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	base := rate.BaseFare
	distCharge := int64(math.Round(distanceKm * float64(rate.PerKm)))
	timeCharge := int64(math.Round(durationMin * float64(rate.PerMin)))
	total := int64(math.Round(float64(base+distCharge+timeCharge) * surge))

	est := Estimate{
		BasePrice:       types.Money{Amount: base, Currency: currency},
		DistanceCharge:  types.Money{Amount: distCharge, Currency: currency},
		TimeCharge:      types.Money{Amount: timeCharge, Currency: currency},
		SurgeMultiplier: surge,
		EstimatedPrice:  types.Money{Amount: total, Currency: currency},
		DistanceKm:      distanceKm,
		DurationMin:     durationMin,
	}
	if surge > 1.0 {
		est.SurgeReason = SurgeReasonHighDemand
	}
	return est, nil
}

func (s *Service) rateFor(ctx context.Context, vehicleClass string) (Rate, error) {
	if s.rates != nil {
		rate, err := s.rates.GetRate(ctx, vehicleClass)
		if err == nil {
			return rate, nil
		}
		if !errors.Is(err, ErrUnknownVehicleClass) {
			return Rate{}, err
		}
	}
	rate, ok := defaultRates[vehicleClass]
	if !ok {
		return Rate{}, ErrUnknownVehicleClass
	}
	return rate, nil
}
