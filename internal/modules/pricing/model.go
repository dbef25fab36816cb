// README: Pricing rate definition and quote result.
package pricing

import (
	"fmt"

	"ridehail/internal/types"
)

// Rate is the tariff for one city: a flat base fare plus a per-kilometre charge,
// never less than MinFare. Amounts are in whole currency units.
type Rate struct {
	City     string `yaml:"city"`
	BaseFare int64  `yaml:"base_fare"`
	PerKm    int64  `yaml:"per_km"`
	MinFare  int64  `yaml:"min_fare"`
	Currency string `yaml:"currency"`
}

// Validate rejects negative amounts.
func (r Rate) Validate() error {
	if r.BaseFare < 0 || r.PerKm < 0 || r.MinFare < 0 {
		return fmt.Errorf("rate for %s has a negative amount", r.City)
	}
	return nil
}

// DefaultRate is used when neither config nor the rates table supplies one.
var DefaultRate = Rate{
	City:     "almaty",
	BaseFare: 300,
	PerKm:    120,
	MinFare:  500,
	Currency: "KZT",
}

type Quote struct {
	DistanceKm float64     `json:"distance"`
	Price      types.Money `json:"price"`
}
