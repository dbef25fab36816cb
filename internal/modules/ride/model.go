// README: Ride aggregate, status graph and audit events.
package ride

import (
	"time"

	"ridehail/internal/errs"
	"ridehail/internal/types"
)

type Status string

const (
	StatusNone           Status = ""
	StatusPending        Status = "pending"
	StatusDriverAssigned Status = "driver_assigned"
	StatusInProgress     Status = "in_progress"
	StatusOnSite         Status = "on_site"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusDriverAssigned, StatusInProgress, StatusOnSite, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return StatusNone, errs.Newf(errs.CodeInvalidArgument, "unknown ride status %q", s)
}

// Terminal reports whether no transition leaves st.
func (st Status) Terminal() bool {
	return st == StatusCompleted || st == StatusCancelled
}

// Active reports whether a driver on a ride in st is busy.
func (st Status) Active() bool {
	return st == StatusDriverAssigned || st == StatusInProgress || st == StatusOnSite
}

type PaymentType string

const (
	PaymentCash PaymentType = "cash"
	PaymentCard PaymentType = "card"
)

func ParsePaymentType(s string) (PaymentType, error) {
	switch p := PaymentType(s); p {
	case "":
		return PaymentCash, nil
	case PaymentCash, PaymentCard:
		return p, nil
	}
	return "", errs.Newf(errs.CodeInvalidArgument, "unknown payment type %q", s)
}

type Ride struct {
	ID                 types.ID    `json:"id"`
	PassengerID        *types.ID   `json:"passengerId"`
	DriverID           *types.ID   `json:"driverId"`
	CreatedBy          types.ID    `json:"createdBy"`
	Origin             types.Point `json:"origin"`
	Destination        types.Point `json:"destination"`
	OriginName         string      `json:"originName,omitempty"`
	DestinationName    string      `json:"destinationName,omitempty"`
	City               string      `json:"city,omitempty"`
	DistanceKm         float64     `json:"distance"`
	Price              types.Money `json:"price"`
	PaymentType        PaymentType `json:"paymentType"`
	Status             Status      `json:"status"`
	CancellationReason *string     `json:"cancellationReason"`
	Version            int         `json:"version"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

func (r *Ride) clone() *Ride {
	c := *r
	if r.PassengerID != nil {
		c.PassengerID = types.IDPtr(*r.PassengerID)
	}
	if r.DriverID != nil {
		c.DriverID = types.IDPtr(*r.DriverID)
	}
	if r.CancellationReason != nil {
		reason := *r.CancellationReason
		c.CancellationReason = &reason
	}
	return &c
}

func (r *Ride) isPassenger(id types.ID) bool {
	return r.PassengerID != nil && *r.PassengerID == id
}

func (r *Ride) isDriver(id types.ID) bool {
	return r.DriverID != nil && *r.DriverID == id
}

// Event is one audited status change. Claims are recorded with From == To.
type Event struct {
	ID        int64      `json:"-"`
	RideID    types.ID   `json:"rideId"`
	From      Status     `json:"from"`
	To        Status     `json:"to"`
	ActorRole types.Role `json:"actorRole"`
	ActorID   *types.ID  `json:"actorId"`
	At        time.Time  `json:"at"`
}

// AllowedTransitions represents the ride state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:        {StatusDriverAssigned, StatusCancelled},
	StatusDriverAssigned: {StatusInProgress, StatusOnSite, StatusCancelled},
	StatusInProgress:     {StatusOnSite, StatusCompleted, StatusCancelled},
	StatusOnSite:         {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
