// README: Pricing store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRateNotFound = errors.New("rate not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, city string) (Rate, error) {
	r := Rate{City: city}
	err := s.db.QueryRow(ctx, `
		SELECT base_fare, per_km, min_fare, currency
		FROM pricing_rates
		WHERE city = $1`, city,
	).Scan(&r.BaseFare, &r.PerKm, &r.MinFare, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	if err != nil {
		return Rate{}, err
	}
	return r, nil
}
