// README: Read-only driver projection used by ride details and QR eligibility.
package profile

import (
	"context"

	"ridehail/internal/errs"
	"ridehail/internal/types"
)

type Driver struct {
	ID          types.ID `json:"id"`
	Name        string   `json:"name"`
	Phone       string   `json:"phone"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"reviewCount"`
}

var ErrNotFound = errs.New(errs.CodeNotFound, "driver not found")

type Store interface {
	GetDriver(ctx context.Context, id types.ID) (*Driver, error)
}
