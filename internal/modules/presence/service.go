// README: Presence service owns line/parking/busy flags and keeps the geo index in sync.
package presence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"ridehail/internal/config"
	"ridehail/internal/errs"
	"ridehail/internal/modules/location"
	"ridehail/internal/modules/pricing"
	"ridehail/internal/types"
)

type Service struct {
	store  Store
	index  location.Index
	active ActiveRides
	cfg    config.PresenceConfig
	locks  *keyedMutex
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(store Store, index location.Index, cfg config.PresenceConfig, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store: store,
		index: index,
		cfg:   cfg,
		locks: newKeyedMutex(),
		log:   log.WithField("module", "presence"),
		now:   time.Now,
	}
}

// SetActiveRides lets Reindex correct busy flags from the ride store. It must
// be called before the reindexer starts.
func (s *Service) SetActiveRides(src ActiveRides) {
	s.active = src
}

func (s *Service) ActivateLine(ctx context.Context, driverID types.ID, loc types.Point) (*Presence, error) {
	if err := pricing.ValidatePoint(loc); err != nil {
		return nil, err
	}
	return s.mutate(ctx, driverID, func(p *Presence, found bool) (bool, error) {
		p.OnLine = true
		p.Location = loc
		return true, nil
	})
}

// DeactivateLine takes the driver offline. Unknown or already offline drivers
// are left untouched.
func (s *Service) DeactivateLine(ctx context.Context, driverID types.ID) (*Presence, error) {
	return s.mutate(ctx, driverID, func(p *Presence, found bool) (bool, error) {
		if !found || !p.OnLine {
			return false, nil
		}
		p.OnLine = false
		p.ParkingMode = false
		return true, nil
	})
}

func (s *Service) ActivateParking(ctx context.Context, driverID types.ID, loc types.Point) (*Presence, error) {
	if err := pricing.ValidatePoint(loc); err != nil {
		return nil, err
	}
	return s.mutate(ctx, driverID, func(p *Presence, found bool) (bool, error) {
		if !found || !p.OnLine {
			return false, errOffline
		}
		if p.Busy {
			return false, errBusy
		}
		p.ParkingMode = true
		p.Location = loc
		return true, nil
	})
}

func (s *Service) DeactivateParking(ctx context.Context, driverID types.ID) (*Presence, error) {
	return s.mutate(ctx, driverID, func(p *Presence, found bool) (bool, error) {
		if !p.ParkingMode {
			return false, nil
		}
		p.ParkingMode = false
		return true, nil
	})
}

func (s *Service) Get(ctx context.Context, driverID types.ID) (*Presence, error) {
	var p *Presence
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.store.Get(ctx, driverID)
		return err
	})
	return p, err
}

func (s *Service) NearbyParked(ctx context.Context, center types.Point, radiusKm float64) ([]location.Nearby, error) {
	if err := pricing.ValidatePoint(center); err != nil {
		return nil, err
	}
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) {
		return nil, errs.New(errs.CodeInvalidArgument, "radius must be a finite number")
	}
	return s.index.NearbyParked(ctx, center, radiusKm)
}

// AssignRide runs commit while holding the driver's lock. The driver is
// reserved (busy, parking off) before commit and restored if commit fails,
// so nothing else can park or assign the driver in between. With
// requireOnline the driver must also be on line.
func (s *Service) AssignRide(ctx context.Context, driverID types.ID, requireOnline bool, commit func(ctx context.Context) error) error {
	unlock, err := s.locks.Lock(ctx, driverID)
	if err != nil {
		return err
	}
	defer unlock()

	p, found, err := s.load(ctx, driverID)
	if err != nil {
		return err
	}
	if requireOnline && (!found || !p.OnLine) {
		return errOffline
	}
	if p.Busy {
		return errBusy
	}

	prev := *p
	p.Busy = true
	p.ParkingMode = false
	p.UpdatedAt = s.now()
	if err := s.save(ctx, p); err != nil {
		return err
	}

	if err := commit(ctx); err != nil {
		if rbErr := s.save(context.WithoutCancel(ctx), &prev); rbErr != nil {
			s.log.WithError(rbErr).WithField("driver_id", driverID).Error("restore presence after failed assignment")
		}
		return err
	}

	s.syncIndex(ctx, *p)
	return nil
}

// ReleaseRide clears the busy flag. Parking is not restored.
func (s *Service) ReleaseRide(ctx context.Context, driverID types.ID) error {
	_, err := s.mutate(ctx, driverID, func(p *Presence, found bool) (bool, error) {
		if !found || !p.Busy {
			return false, nil
		}
		p.Busy = false
		return true, nil
	})
	return err
}

// Reindex rebuilds the geo index one driver at a time. Each driver is
// re-read under its lock, so nothing written while the rebuild runs is
// overwritten with an older snapshot. Index entries for drivers the store does
// not know are removed. It returns the number of drivers indexed.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	var rows []Presence
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		rows, err = s.store.List(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	indexed, err := s.index.DriverIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list geo index: %w", err)
	}

	seen := make(map[types.ID]struct{}, len(rows)+len(indexed))
	ids := make([]types.ID, 0, len(rows)+len(indexed))
	add := func(id types.ID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, p := range rows {
		add(p.DriverID)
	}
	for _, id := range indexed {
		add(id)
	}

	n := 0
	var failed []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		found, err := s.reindexDriver(ctx, id)
		if err != nil {
			failed = append(failed, err)
			continue
		}
		if found {
			n++
		}
	}
	return n, errors.Join(failed...)
}

func (s *Service) reindexDriver(ctx context.Context, driverID types.ID) (bool, error) {
	unlock, err := s.locks.Lock(ctx, driverID)
	if err != nil {
		return false, err
	}
	defer unlock()

	p, found, err := s.load(ctx, driverID)
	if err != nil {
		return false, err
	}
	if !found {
		if err := s.index.Remove(ctx, driverID); err != nil {
			return false, fmt.Errorf("drop %s from geo index: %w", driverID, err)
		}
		return false, nil
	}
	if err := s.repairBusy(ctx, p); err != nil {
		return true, err
	}
	if p.OnLine {
		err = s.index.Upsert(ctx, p.entry())
	} else {
		err = s.index.Remove(ctx, driverID)
	}
	if err != nil {
		return true, fmt.Errorf("index %s: %w", driverID, err)
	}
	return true, nil
}

// repairBusy makes p.Busy agree with the driver's rides. The caller holds the
// driver's lock, and rides only become active under that lock.
func (s *Service) repairBusy(ctx context.Context, p *Presence) error {
	if s.active == nil {
		return nil
	}
	var active bool
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		active, err = s.active.HasActiveRide(ctx, p.DriverID)
		return err
	})
	if err != nil {
		return fmt.Errorf("active rides of %s: %w", p.DriverID, err)
	}
	if active == p.Busy {
		return nil
	}

	s.log.WithFields(logrus.Fields{"driver_id": p.DriverID, "busy": active}).Warn("busy flag out of step with rides, repairing")
	p.Busy = active
	if active {
		p.ParkingMode = false
	}
	p.UpdatedAt = s.now()
	return s.save(ctx, p)
}

// RunReindexer reindexes once, then on schedule until ctx is done. The first
// run doubles as the startup sweep for busy flags.
func (s *Service) RunReindexer(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = s.cfg.ReindexSchedule
	}
	run := func() {
		n, err := s.Reindex(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.WithError(err).Warn("geo reindex failed")
			}
			return
		}
		s.log.WithField("entries", n).Debug("geo index rebuilt")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, run); err != nil {
		return fmt.Errorf("reindex schedule %q: %w", schedule, err)
	}
	run()
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// mutate loads the driver's presence under its lock, applies fn and persists
// the result when fn reports a change. Unknown drivers start from a blank record.
func (s *Service) mutate(ctx context.Context, driverID types.ID, fn func(p *Presence, found bool) (bool, error)) (*Presence, error) {
	unlock, err := s.locks.Lock(ctx, driverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, found, err := s.load(ctx, driverID)
	if err != nil {
		return nil, err
	}
	changed, err := fn(p, found)
	if err != nil {
		return nil, err
	}
	if !changed {
		out := *p
		return &out, nil
	}

	p.UpdatedAt = s.now()
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.syncIndex(ctx, *p)
	out := *p
	return &out, nil
}

func (s *Service) load(ctx context.Context, driverID types.ID) (*Presence, bool, error) {
	p, err := s.Get(ctx, driverID)
	if errors.Is(err, ErrNotFound) {
		return &Presence{DriverID: driverID}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *Service) save(ctx context.Context, p *Presence) error {
	return s.storeCall(ctx, func(ctx context.Context) error {
		return s.store.Save(ctx, p)
	})
}

func (s *Service) storeCall(ctx context.Context, fn func(ctx context.Context) error) error {
	return errs.WithTimeout(ctx, s.cfg.StoreTimeout, fn)
}

// syncIndex pushes p into the geo index. The index is rebuilt by the
// reindexer, so a failure here is logged and not returned.
func (s *Service) syncIndex(ctx context.Context, p Presence) {
	var err error
	if p.OnLine {
		err = s.index.Upsert(ctx, p.entry())
	} else {
		err = s.index.Remove(ctx, p.DriverID)
	}
	if err != nil {
		s.log.WithError(err).WithField("driver_id", p.DriverID).Warn("geo index sync failed")
	}
}
