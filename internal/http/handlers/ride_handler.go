// README: Ride handlers: creation, lifecycle transitions, price quotes and ride queries.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridehail/internal/http/middleware"
	"ridehail/internal/modules/pricing"
	"ridehail/internal/modules/ride"
	"ridehail/internal/types"
)

type RideHandler struct {
	rides   *ride.Service
	pricing *pricing.Service
}

func NewRideHandler(rides *ride.Service, pricing *pricing.Service) *RideHandler {
	return &RideHandler{rides: rides, pricing: pricing}
}

type createRideReq struct {
	Origin          *Coordinate `json:"origin" binding:"required"`
	Destination     *Coordinate `json:"destination" binding:"required"`
	OriginName      string      `json:"originName"`
	DestinationName string      `json:"destinationName"`
	City            string      `json:"city"`
	PaymentType     string      `json:"paymentType"`
}

func (r createRideReq) command(actor types.Actor) ride.CreateCommand {
	return ride.CreateCommand{
		Actor:           actor,
		Origin:          r.Origin.Point(),
		Destination:     r.Destination.Point(),
		OriginName:      r.OriginName,
		DestinationName: r.DestinationName,
		City:            r.City,
		PaymentType:     ride.PaymentType(r.PaymentType),
	}
}

type qrRideReq struct {
	createRideReq
	DriverID string `json:"driverId" binding:"required"`
}

type rideIDReq struct {
	RideID string `json:"rideId" binding:"required"`
}

type cancelReq struct {
	CancellationReason string `json:"cancellationReason"`
}

type updateStatusReq struct {
	RideID             string `json:"rideId" binding:"required"`
	Status             string `json:"status" binding:"required"`
	CancellationReason string `json:"cancellationReason"`
}

func (h *RideHandler) Request(c *gin.Context) {
	var req createRideReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.RequestRide(c.Request.Context(), req.command(middleware.Actor(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ride": r})
}

func (h *RideHandler) CreateWithoutPassenger(c *gin.Context) {
	var req createRideReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.CreateWithoutPassenger(c.Request.Context(), req.command(middleware.Actor(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ride": r})
}

func (h *RideHandler) StartByQR(c *gin.Context) {
	var req qrRideReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.StartByQR(c.Request.Context(), ride.QRCommand{
		CreateCommand: req.command(middleware.Actor(c)),
		DriverID:      types.ID(req.DriverID),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ride": r})
}

func (h *RideHandler) Accept(c *gin.Context) {
	var req rideIDReq
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, h.rides.Accept, types.ID(req.RideID))
}

func (h *RideHandler) Start(c *gin.Context) {
	h.transition(c, h.rides.Start, types.ID(c.Param("rideId")))
}

func (h *RideHandler) Onsite(c *gin.Context) {
	h.transition(c, h.rides.Onsite, types.ID(c.Param("rideId")))
}

func (h *RideHandler) Complete(c *gin.Context) {
	h.transition(c, h.rides.Complete, types.ID(c.Param("rideId")))
}

func (h *RideHandler) Claim(c *gin.Context) {
	h.transition(c, h.rides.ClaimRide, types.ID(c.Param("rideId")))
}

func (h *RideHandler) Cancel(c *gin.Context) {
	var req cancelReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		Actor:  middleware.Actor(c),
		RideID: types.ID(c.Param("rideId")),
		Reason: req.CancellationReason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": r})
}

func (h *RideHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.UpdateStatus(c.Request.Context(), ride.UpdateStatusCommand{
		Actor:  middleware.Actor(c),
		RideID: types.ID(req.RideID),
		Status: ride.Status(req.Status),
		Reason: req.CancellationReason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": r})
}

type priceReq struct {
	Origin      *Coordinate `json:"origin" binding:"required"`
	Destination *Coordinate `json:"destination" binding:"required"`
}

// Price quotes distance and price. Coordinates come from the origin and
// destination query parameters, or from the JSON body when those are absent.
func (h *RideHandler) Price(c *gin.Context) {
	var origin, destination types.Point
	if qo, qd := c.Query("origin"), c.Query("destination"); qo != "" || qd != "" {
		var err error
		if origin, err = ParsePoint(qo); err != nil {
			writeError(c, err)
			return
		}
		if destination, err = ParsePoint(qd); err != nil {
			writeError(c, err)
			return
		}
	} else {
		var req priceReq
		if !bindJSON(c, &req) {
			return
		}
		origin, destination = req.Origin.Point(), req.Destination.Point()
	}
	q, err := h.pricing.Quote(origin, destination)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.rides.GetRide(c.Request.Context(), types.ID(c.Param("rideId")))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": r})
}

func (h *RideHandler) MyDriverRides(c *gin.Context) {
	h.driverRides(c, types.ID(middleware.CallerUID(c)))
}

func (h *RideHandler) MyUserRides(c *gin.Context) {
	h.userRides(c, types.ID(middleware.CallerUID(c)))
}

func (h *RideHandler) DriverRides(c *gin.Context) {
	h.driverRides(c, types.ID(c.Param("driverId")))
}

func (h *RideHandler) UserRides(c *gin.Context) {
	h.userRides(c, types.ID(c.Param("userId")))
}

func (h *RideHandler) DriverDetails(c *gin.Context) {
	id := c.Param("driverId")
	if id == "" {
		badRequest(c, "missing driverId")
		return
	}
	d, err := h.rides.DriverDetails(c.Request.Context(), types.ID(id))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *RideHandler) driverRides(c *gin.Context, id types.ID) {
	list, err := h.rides.DriverRides(c.Request.Context(), id, boolQuery(c, "history"))
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []ride.Ride{}
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": list})
}

func (h *RideHandler) userRides(c *gin.Context, id types.ID) {
	list, err := h.rides.PassengerRides(c.Request.Context(), id, boolQuery(c, "history"))
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []ride.Ride{}
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": list})
}

type transitionFunc func(ctx context.Context, cmd ride.RideCommand) (*ride.Ride, error)

func (h *RideHandler) transition(c *gin.Context, fn transitionFunc, rideID types.ID) {
	if rideID == "" {
		badRequest(c, "missing rideId")
		return
	}
	r, err := fn(c.Request.Context(), ride.RideCommand{Actor: middleware.Actor(c), RideID: rideID})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": r})
}
