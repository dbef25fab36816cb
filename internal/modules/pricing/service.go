// README: Pricing service computes ride distance and fare.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"ridehail/internal/types"
)

type Service struct {
	store *Store

	mu   sync.RWMutex
	rate Rate
}

// NewService builds a pricing service. store may be nil, in which case the
// given rate is final.
func NewService(store *Store, rate Rate) *Service {
	if rate.Currency == "" {
		rate = DefaultRate
	}
	return &Service{store: store, rate: rate}
}

// LoadRate replaces the current rate with the row stored for city, if any.
func (s *Service) LoadRate(ctx context.Context, city string) error {
	if s.store == nil {
		return nil
	}
	r, err := s.store.GetRate(ctx, city)
	if errors.Is(err, ErrRateNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load rate for %s: %w", city, err)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.rate = r
	s.mu.Unlock()
	return nil
}

func (s *Service) Rate() Rate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate
}

// ComputeDistance validates both points and returns the haversine distance in km.
func (s *Service) ComputeDistance(origin, destination types.Point) (float64, error) {
	if err := ValidatePoint(origin); err != nil {
		return 0, err
	}
	if err := ValidatePoint(destination); err != nil {
		return 0, err
	}
	return Haversine(origin, destination), nil
}

// ComputePrice is monotonic non-decreasing in distanceKm.
func (s *Service) ComputePrice(distanceKm float64) types.Money {
	return PriceFor(s.Rate(), distanceKm)
}

// Quote computes distance and price together.
func (s *Service) Quote(origin, destination types.Point) (Quote, error) {
	d, err := s.ComputeDistance(origin, destination)
	if err != nil {
		return Quote{}, err
	}
	return Quote{DistanceKm: d, Price: s.ComputePrice(d)}, nil
}

// PriceFor applies r to distanceKm without touching any state.
func PriceFor(r Rate, distanceKm float64) types.Money {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		distanceKm = 0
	}
	amount := r.BaseFare + int64(math.Ceil(distanceKm*float64(r.PerKm)))
	if amount < r.MinFare {
		amount = r.MinFare
	}
	return types.Money{Amount: amount, Currency: r.Currency}
}
