// README: Driver presence record and its store contract.
package presence

import (
	"context"
	"time"

	"ridehail/internal/errs"
	"ridehail/internal/modules/location"
	"ridehail/internal/types"
)

// Presence is the durable line/parking/busy state of one driver.
// ParkingMode is only ever true while OnLine && !Busy.
type Presence struct {
	DriverID    types.ID    `json:"driverId"`
	OnLine      bool        `json:"onLine"`
	ParkingMode bool        `json:"parkingMode"`
	Busy        bool        `json:"busy"`
	Location    types.Point `json:"location"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (p Presence) entry() location.Entry {
	return location.Entry{
		DriverID:    p.DriverID,
		Location:    p.Location,
		ParkingMode: p.ParkingMode,
		OnLine:      p.OnLine,
	}
}

var ErrNotFound = errs.New(errs.CodeNotFound, "driver presence not found")

var (
	errOffline = errs.New(errs.CodeNotEligible, "driver is offline")
	errBusy    = errs.New(errs.CodeNotEligible, "driver is busy")
)

// Store is the system of record for presence. Get returns ErrNotFound for
// unknown drivers; Save inserts or replaces.
type Store interface {
	Get(ctx context.Context, driverID types.ID) (*Presence, error)
	Save(ctx context.Context, p *Presence) error
	List(ctx context.Context) ([]Presence, error)
}

// ActiveRides reports whether a driver is assigned to a ride in an active
// status (driver_assigned, in_progress or on_site).
type ActiveRides interface {
	HasActiveRide(ctx context.Context, driverID types.ID) (bool, error)
}
