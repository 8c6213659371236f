// README: Fare rate store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, vehicleClass string) (Rate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT vehicle_class, base_fare, per_km, per_min, currency
		FROM fare_rates
		WHERE vehicle_class = $1`, vehicleClass,
	)

	var r Rate
	err := row.Scan(&r.VehicleClass, &r.BaseFare, &r.PerKm, &r.PerMin, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrUnknownVehicleClass
	}
	if err != nil {
		return Rate{}, err
	}
	return r, nil
}
