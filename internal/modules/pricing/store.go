// README: Pricing store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("rate not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, name string) (Rate, error) {
	var r Rate
	err := s.db.QueryRow(ctx, `
		SELECT name, base_fare, per_km, minimum_fare, currency, updated_at
		FROM fare_rates
		WHERE name = $1`, name,
	).Scan(&r.Name, &r.BaseFare, &r.PerKm, &r.MinimumFare, &r.Currency, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrNotFound
	}
	if err != nil {
		return Rate{}, err
	}
	return r, nil
}

func (s *Store) UpsertRate(ctx context.Context, r Rate) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO fare_rates (name, base_fare, per_km, minimum_fare, currency, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (name) DO UPDATE
		SET base_fare = EXCLUDED.base_fare,
		    per_km = EXCLUDED.per_km,
		    minimum_fare = EXCLUDED.minimum_fare,
		    currency = EXCLUDED.currency,
		    updated_at = NOW()`,
		r.Name, r.BaseFare, r.PerKm, r.MinimumFare, r.Currency,
	)
	return err
}
