// README: Promo store backed by PostgreSQL.
package promo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideflow/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetByCode(ctx context.Context, code string) (*Code, error) {
	row := s.db.QueryRow(ctx, `
		SELECT code, active, expires_at, discount_type, discount_value,
		       min_fare, per_user_limit, vehicle_classes
		FROM promo_codes
		WHERE code = $1`, code,
	)

	var c Code
	var discountType string
	err := row.Scan(
		&c.Code, &c.Active, &c.ExpiresAt, &discountType, &c.DiscountValue,
		&c.MinFare, &c.PerUserLimit, &c.VehicleClasses,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.DiscountType = DiscountType(discountType)
	return &c, nil
}

func (s *Store) RedemptionCount(ctx context.Context, code string, userID types.ID) (int, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM promo_redemptions
		WHERE code = $1 AND user_id = $2`, code, string(userID),
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
