// README: Ride store backed by PostgreSQL (rides, ride_events).
package ride

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridehail/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `
	id, passenger_id, driver_id, created_by,
	origin_lat, origin_lng, destination_lat, destination_lng,
	origin_name, destination_name, city,
	distance_km, price_amount, price_currency, payment_type,
	status, cancellation_reason, version, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19, $20
		)`,
		string(r.ID), toStringPtr(r.PassengerID), toStringPtr(r.DriverID), string(r.CreatedBy),
		r.Origin.Lat, r.Origin.Lng, r.Destination.Lat, r.Destination.Lng,
		r.OriginName, r.DestinationName, r.City,
		r.DistanceKm, r.Price.Amount, r.Price.Currency, string(r.PaymentType),
		string(r.Status), r.CancellationReason, r.Version, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PGStore) UpdateCAS(ctx context.Context, r *Ride, expected int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET passenger_id = $1,
			driver_id = $2,
			status = $3,
			cancellation_reason = $4,
			version = version + 1,
			updated_at = $5
		WHERE id = $6 AND version = $7`,
		toStringPtr(r.PassengerID),
		toStringPtr(r.DriverID),
		string(r.Status),
		r.CancellationReason,
		r.UpdatedAt,
		string(r.ID),
		expected,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, string(r.ID)).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO ride_events (ride_id, from_status, to_status, actor_role, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.RideID),
		string(e.From),
		string(e.To),
		string(e.ActorRole),
		toStringPtr(e.ActorID),
		e.At,
	).Scan(&e.ID)
}

func (s *PGStore) ListByDriver(ctx context.Context, driverID types.ID, activeOnly bool) ([]Ride, error) {
	return s.list(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE (driver_id = $1 OR (driver_id IS NULL AND created_by = $1))
		  AND (NOT $2 OR status NOT IN ('completed', 'cancelled'))
		ORDER BY created_at DESC, id DESC`, string(driverID), activeOnly)
}

func (s *PGStore) ListByPassenger(ctx context.Context, passengerID types.ID, activeOnly bool) ([]Ride, error) {
	return s.list(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE passenger_id = $1
		  AND (NOT $2 OR status NOT IN ('completed', 'cancelled'))
		ORDER BY created_at DESC, id DESC`, string(passengerID), activeOnly)
}

func (s *PGStore) list(ctx context.Context, query string, args ...any) ([]Ride, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Ride{}
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var passengerID, driverID *string
	var paymentType, status string
	err := row.Scan(
		&r.ID, &passengerID, &driverID, &r.CreatedBy,
		&r.Origin.Lat, &r.Origin.Lng, &r.Destination.Lat, &r.Destination.Lng,
		&r.OriginName, &r.DestinationName, &r.City,
		&r.DistanceKm, &r.Price.Amount, &r.Price.Currency, &paymentType,
		&status, &r.CancellationReason, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.PassengerID = toIDPtr(passengerID)
	r.DriverID = toIDPtr(driverID)
	r.PaymentType = PaymentType(paymentType)
	r.Status = Status(status)
	return &r, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	return types.IDPtr(types.ID(*v))
}
