// README: Base handler utilities (JSON helpers, coordinate parsing, error mapping).
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ridehail/internal/errs"
	"ridehail/internal/types"
)

type errorResponse struct {
	Error string    `json:"error"`
	Code  errs.Code `json:"code"`
}

var statusByCode = map[errs.Code]int{
	errs.CodeInvalidCoordinate: http.StatusBadRequest,
	errs.CodeInvalidArgument:   http.StatusBadRequest,
	errs.CodeInvalidTransition: http.StatusBadRequest,
	errs.CodeAlreadyAssigned:   http.StatusBadRequest,
	errs.CodeNotEligible:       http.StatusBadRequest,
	errs.CodeUnauthorized:      http.StatusForbidden,
	errs.CodeNotFound:          http.StatusNotFound,
	errs.CodeConflict:          http.StatusConflict,
	errs.CodeRateLimited:       http.StatusTooManyRequests,
	errs.CodeStoreTimeout:      http.StatusServiceUnavailable,
	errs.CodeInternal:          http.StatusInternalServerError,
}

func statusFor(code errs.Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// writeError maps err to its HTTP status. Internal failures never leak their message.
func writeError(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	msg := err.Error()
	if code == errs.CodeInternal {
		_ = c.Error(err)
		msg = "internal error"
	}
	writeJSON(c, statusFor(code), errorResponse{Error: msg, Code: code})
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, errs.New(errs.CodeInvalidArgument, msg))
}

// bindJSON decodes the body into v. Coded errors raised while decoding (bad
// coordinates) keep their code; anything else is INVALID_ARGUMENT.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		if errs.CodeOf(err) == errs.CodeInternal {
			err = errs.Newf(errs.CodeInvalidArgument, "invalid request body: %v", err)
		}
		writeError(c, err)
		return false
	}
	return true
}

func boolQuery(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}

var errCoordinateFormat = errs.New(errs.CodeInvalidCoordinate, `coordinate must be "lat,lng" or {"lat":..,"lng":..}`)

// Coordinate is a point accepted as "lat,lng", {"lat","lng"} or {"latitude","longitude"}.
type Coordinate types.Point

func (p Coordinate) Point() types.Point {
	return types.Point(p)
}

func (p *Coordinate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		pt, err := ParsePoint(s)
		if err != nil {
			return err
		}
		*p = Coordinate(pt)
		return nil
	}
	pt, err := decodePointObject(b)
	if err != nil {
		return err
	}
	*p = Coordinate(pt)
	return nil
}

// ParsePoint reads "lat,lng" or a JSON object string.
func ParsePoint(s string) (types.Point, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		return decodePointObject([]byte(s))
	}
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return types.Point{}, errCoordinateFormat
	}
	return parseLatLng(lat, lng)
}

func parseLatLng(lat, lng string) (types.Point, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return types.Point{}, errCoordinateFormat
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return types.Point{}, errCoordinateFormat
	}
	return types.Point{Lat: la, Lng: ln}, nil
}

func decodePointObject(b []byte) (types.Point, error) {
	var obj struct {
		Lat       *float64 `json:"lat"`
		Lng       *float64 `json:"lng"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return types.Point{}, errCoordinateFormat
	}
	lat, lng := obj.Lat, obj.Lng
	if lat == nil {
		lat = obj.Latitude
	}
	if lng == nil {
		lng = obj.Longitude
	}
	if lat == nil || lng == nil {
		return types.Point{}, errCoordinateFormat
	}
	return types.Point{Lat: *lat, Lng: *lng}, nil
}
