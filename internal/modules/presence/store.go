// README: Presence store backed by PostgreSQL (driver_presence table).
package presence

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

func (s *PGStore) Get(ctx context.Context, driverID types.ID) (*Presence, error) {
	row := s.db.QueryRow(ctx, `
		SELECT driver_id, on_line, parking_mode, busy, lat, lng, updated_at
		FROM driver_presence
		WHERE driver_id = $1`, string(driverID),
	)
	var p Presence
	err := row.Scan(&p.DriverID, &p.OnLine, &p.ParkingMode, &p.Busy, &p.Location.Lat, &p.Location.Lng, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) Save(ctx context.Context, p *Presence) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_presence (driver_id, on_line, parking_mode, busy, lat, lng, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (driver_id) DO UPDATE SET
			on_line = EXCLUDED.on_line,
			parking_mode = EXCLUDED.parking_mode,
			busy = EXCLUDED.busy,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			updated_at = EXCLUDED.updated_at`,
		string(p.DriverID), p.OnLine, p.ParkingMode, p.Busy,
		p.Location.Lat, p.Location.Lng, p.UpdatedAt,
	)
	return err
}

func (s *PGStore) List(ctx context.Context) ([]Presence, error) {
	rows, err := s.db.Query(ctx, `
		SELECT driver_id, on_line, parking_mode, busy, lat, lng, updated_at
		FROM driver_presence
		ORDER BY driver_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Presence
	for rows.Next() {
		var p Presence
		if err := rows.Scan(&p.DriverID, &p.OnLine, &p.ParkingMode, &p.Busy, &p.Location.Lat, &p.Location.Lng, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
