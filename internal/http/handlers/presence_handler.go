// README: Driver presence handlers: line, parking mode and nearby parked search.
package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridehail/internal/http/middleware"
	"ridehail/internal/modules/location"
	"ridehail/internal/modules/presence"
	"ridehail/internal/types"
)

type PresenceHandler struct {
	presence *presence.Service
}

func NewPresenceHandler(svc *presence.Service) *PresenceHandler {
	return &PresenceHandler{presence: svc}
}

type locationReq struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func (r locationReq) point() types.Point {
	return types.Point{Lat: *r.Latitude, Lng: *r.Longitude}
}

func (h *PresenceHandler) ActivateLine(c *gin.Context) {
	var req locationReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.presence.ActivateLine(c.Request.Context(), driverID(c), req.point())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"presence": p})
}

func (h *PresenceHandler) DeactivateLine(c *gin.Context) {
	p, err := h.presence.DeactivateLine(c.Request.Context(), driverID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"presence": p})
}

func (h *PresenceHandler) ActivateParking(c *gin.Context) {
	var req locationReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.presence.ActivateParking(c.Request.Context(), driverID(c), req.point())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"presence": p})
}

func (h *PresenceHandler) DeactivateParking(c *gin.Context) {
	p, err := h.presence.DeactivateParking(c.Request.Context(), driverID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"presence": p})
}

// NearbyParked serves GET /rides/parking?latitude=&longitude=&radius=.
func (h *PresenceHandler) NearbyParked(c *gin.Context) {
	center, err := parseLatLng(c.Query("latitude"), c.Query("longitude"))
	if err != nil {
		writeError(c, err)
		return
	}
	radius := location.DefaultRadiusKm
	if v := c.Query("radius"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
			badRequest(c, "radius must be a positive number")
			return
		}
	}
	hits, err := h.presence.NearbyParked(c.Request.Context(), center, radius)
	if err != nil {
		writeError(c, err)
		return
	}
	if hits == nil {
		hits = []location.Nearby{}
	}
	writeJSON(c, http.StatusOK, hits)
}

func driverID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}
