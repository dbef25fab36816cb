// README: Great-circle distance and coordinate validation shared by pricing and the geo index.
package pricing

import (
	"math"

	"ridehail/internal/errs"
	"ridehail/internal/types"
)

const (
	earthRadiusKm = 6371.0
	// distancePrecision is the number of decimals kept in computed distances.
	distancePrecision = 4
)

var ErrInvalidCoordinate = errs.New(errs.CodeInvalidCoordinate, "invalid coordinate")

// ValidatePoint rejects latitudes outside [-90,90] and longitudes outside [-180,180].
func ValidatePoint(p types.Point) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return ErrInvalidCoordinate
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return errs.Newf(errs.CodeInvalidCoordinate, "invalid coordinate (%g,%g)", p.Lat, p.Lng)
	}
	return nil
}

// Haversine returns the great-circle distance in kilometres between a and b,
// rounded to distancePrecision decimals. It does not validate its inputs.
func Haversine(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return round(earthRadiusKm*c, distancePrecision)
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
