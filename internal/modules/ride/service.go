// README: Ride service implements the ride state machine on top of CAS persistence.
package ride

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridehail/internal/config"
	"ridehail/internal/errs"
	"ridehail/internal/modules/pricing"
	"ridehail/internal/modules/profile"
	"ridehail/internal/types"
)

type Pricing interface {
	Quote(origin, destination types.Point) (pricing.Quote, error)
}

// Presence is the driver busy bookkeeping the lifecycle relies on.
type Presence interface {
	AssignRide(ctx context.Context, driverID types.ID, requireOnline bool, commit func(ctx context.Context) error) error
	ReleaseRide(ctx context.Context, driverID types.ID) error
}

type Profiles interface {
	GetDriver(ctx context.Context, id types.ID) (*profile.Driver, error)
}

// Deps are the collaborators of Service. Publisher, Profiles and Metrics are optional.
type Deps struct {
	Store     Store
	Pricing   Pricing
	Presence  Presence
	Profiles  Profiles
	Publisher Publisher
	Metrics   *Metrics
}

type Service struct {
	store     Store
	pricing   Pricing
	presence  Presence
	profiles  Profiles
	publisher Publisher
	metrics   *Metrics
	cfg       config.RideConfig
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() types.ID
}

func NewService(deps Deps, cfg config.RideConfig, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:     deps.Store,
		pricing:   deps.Pricing,
		presence:  deps.Presence,
		profiles:  deps.Profiles,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		cfg:       cfg,
		log:       log.WithField("module", "ride"),
		now:       time.Now,
		newID:     func() types.ID { return types.ID(uuid.NewString()) },
	}
}

var (
	errNotParticipant  = errs.New(errs.CodeUnauthorized, "not a participant of this ride")
	errAlreadyAssigned = errs.New(errs.CodeAlreadyAssigned, "ride already has a driver")
	errHasPassenger    = errs.New(errs.CodeAlreadyAssigned, "ride already has a passenger")
	errReasonRequired  = errs.New(errs.CodeInvalidArgument, "cancellation reason is required")
	errConflict        = errs.New(errs.CodeConflict, "ride was modified concurrently")
)

func invalidTransition(from, to Status) error {
	return errs.Newf(errs.CodeInvalidTransition, "ride cannot move from %s to %s", from, to)
}

type CreateCommand struct {
	Actor           types.Actor
	Origin          types.Point
	Destination     types.Point
	OriginName      string
	DestinationName string
	City            string
	PaymentType     PaymentType
}

type QRCommand struct {
	CreateCommand
	DriverID types.ID
}

type RideCommand struct {
	Actor  types.Actor
	RideID types.ID
}

type CancelCommand struct {
	Actor  types.Actor
	RideID types.ID
	Reason string
}

type UpdateStatusCommand struct {
	Actor  types.Actor
	RideID types.ID
	Status Status
	Reason string
}

func (s *Service) RequestRide(ctx context.Context, cmd CreateCommand) (r *Ride, err error) {
	defer s.observe("request", &err)
	if err := types.RequireRole(cmd.Actor, types.RolePassenger); err != nil {
		return nil, err
	}
	r, err = s.newRide(cmd, StatusPending)
	if err != nil {
		return nil, err
	}
	r.PassengerID = types.IDPtr(cmd.Actor.ID)
	if err := s.create(ctx, r); err != nil {
		return nil, err
	}
	s.record(ctx, r, StatusNone, cmd.Actor)
	return r, nil
}

// CreateWithoutPassenger opens a pending ride on a driver's behalf. The ride has
// no passenger until one claims it and no driver until one accepts it.
func (s *Service) CreateWithoutPassenger(ctx context.Context, cmd CreateCommand) (r *Ride, err error) {
	defer s.observe("create_without_passenger", &err)
	if err := types.RequireRole(cmd.Actor, types.RoleDriver); err != nil {
		return nil, err
	}
	r, err = s.newRide(cmd, StatusPending)
	if err != nil {
		return nil, err
	}
	if err := s.create(ctx, r); err != nil {
		return nil, err
	}
	s.record(ctx, r, StatusNone, cmd.Actor)
	return r, nil
}

// StartByQR creates a ride already assigned to the scanned driver, who must
// have a profile and be on line and free.
func (s *Service) StartByQR(ctx context.Context, cmd QRCommand) (r *Ride, err error) {
	defer s.observe("start_by_qr", &err)
	if err := types.RequireRole(cmd.Actor, types.RolePassenger); err != nil {
		return nil, err
	}
	if cmd.DriverID == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "driverId is required")
	}
	if _, err := s.DriverDetails(ctx, cmd.DriverID); err != nil {
		return nil, err
	}
	r, err = s.newRide(cmd.CreateCommand, StatusDriverAssigned)
	if err != nil {
		return nil, err
	}
	r.PassengerID = types.IDPtr(cmd.Actor.ID)
	r.DriverID = types.IDPtr(cmd.DriverID)

	err = s.presence.AssignRide(ctx, cmd.DriverID, true, func(ctx context.Context) error {
		return s.create(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, r, StatusNone, cmd.Actor)
	return r, nil
}

// Accept assigns a pending ride to the calling driver. The driver's presence
// lock is held across the busy check and the ride commit; of several drivers
// racing for one ride exactly one wins and the rest get ALREADY_ASSIGNED.
func (s *Service) Accept(ctx context.Context, cmd RideCommand) (r *Ride, err error) {
	defer s.observe("accept", &err)
	if err := types.RequireRole(cmd.Actor, types.RoleDriver); err != nil {
		return nil, err
	}
	cur, err := s.get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if err := acceptable(cur); err != nil {
		return nil, err
	}

	var from Status
	err = s.presence.AssignRide(ctx, cmd.Actor.ID, false, func(ctx context.Context) error {
		var err error
		r, from, err = s.apply(ctx, cmd.RideID, func(r *Ride) error {
			if err := acceptable(r); err != nil {
				return err
			}
			r.DriverID = types.IDPtr(cmd.Actor.ID)
			r.Status = StatusDriverAssigned
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, r, from, cmd.Actor)
	return r, nil
}

func acceptable(r *Ride) error {
	if r.Status == StatusPending {
		return nil
	}
	if r.DriverID != nil && r.Status != StatusCancelled {
		return errAlreadyAssigned
	}
	return invalidTransition(r.Status, StatusDriverAssigned)
}

func (s *Service) Start(ctx context.Context, cmd RideCommand) (r *Ride, err error) {
	defer s.observe("start", &err)
	return s.driverStep(ctx, cmd, StatusInProgress)
}

func (s *Service) Onsite(ctx context.Context, cmd RideCommand) (r *Ride, err error) {
	defer s.observe("onsite", &err)
	return s.driverStep(ctx, cmd, StatusOnSite)
}

func (s *Service) Complete(ctx context.Context, cmd RideCommand) (r *Ride, err error) {
	defer s.observe("complete", &err)
	r, err = s.driverStep(ctx, cmd, StatusCompleted)
	if err != nil {
		return nil, err
	}
	s.release(ctx, *r.DriverID)
	return r, nil
}

// Cancel is open to the ride's passenger, its assigned driver, and the
// creating driver while nobody has accepted the ride.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (r *Ride, err error) {
	defer s.observe("cancel", &err)
	if err := types.RequireRole(cmd.Actor, types.RolePassenger, types.RoleDriver); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, errReasonRequired
	}

	r, from, err := s.apply(ctx, cmd.RideID, func(r *Ride) error {
		if !CanTransition(r.Status, StatusCancelled) {
			return invalidTransition(r.Status, StatusCancelled)
		}
		if !canCancel(r, cmd.Actor) {
			return errNotParticipant
		}
		r.Status = StatusCancelled
		r.CancellationReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, r, from, cmd.Actor)
	if r.DriverID != nil && from.Active() {
		s.release(ctx, *r.DriverID)
	}
	return r, nil
}

func canCancel(r *Ride, a types.Actor) bool {
	switch a.Role {
	case types.RolePassenger:
		return r.isPassenger(a.ID)
	case types.RoleDriver:
		return r.isDriver(a.ID) || (r.DriverID == nil && r.CreatedBy == a.ID)
	}
	return false
}

// ClaimRide attaches the calling passenger to a driver-created ride.
func (s *Service) ClaimRide(ctx context.Context, cmd RideCommand) (r *Ride, err error) {
	defer s.observe("claim", &err)
	if err := types.RequireRole(cmd.Actor, types.RolePassenger); err != nil {
		return nil, err
	}
	r, from, err := s.apply(ctx, cmd.RideID, func(r *Ride) error {
		if r.Status.Terminal() {
			return errs.Newf(errs.CodeInvalidTransition, "ride is %s", r.Status)
		}
		if r.PassengerID != nil {
			return errHasPassenger
		}
		r.PassengerID = types.IDPtr(cmd.Actor.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, r, from, cmd.Actor)
	return r, nil
}

// UpdateStatus is the generic entry point: it checks the target is reachable
// from the current status and then runs the matching operation.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*Ride, error) {
	if err := types.RequireRole(cmd.Actor, types.RolePassenger, types.RoleDriver); err != nil {
		s.metrics.failure("update_status", string(errs.CodeOf(err)))
		return nil, err
	}
	if _, err := ParseStatus(string(cmd.Status)); err != nil {
		s.metrics.failure("update_status", string(errs.CodeOf(err)))
		return nil, err
	}
	cur, err := s.get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur.Status, cmd.Status) {
		err := invalidTransition(cur.Status, cmd.Status)
		s.metrics.failure("update_status", string(errs.CodeOf(err)))
		return nil, err
	}

	rc := RideCommand{Actor: cmd.Actor, RideID: cmd.RideID}
	switch cmd.Status {
	case StatusDriverAssigned:
		return s.Accept(ctx, rc)
	case StatusInProgress:
		return s.Start(ctx, rc)
	case StatusOnSite:
		return s.Onsite(ctx, rc)
	case StatusCompleted:
		return s.Complete(ctx, rc)
	case StatusCancelled:
		return s.Cancel(ctx, CancelCommand{Actor: cmd.Actor, RideID: cmd.RideID, Reason: cmd.Reason})
	}
	return nil, invalidTransition(cur.Status, cmd.Status)
}

func (s *Service) GetRide(ctx context.Context, id types.ID) (*Ride, error) {
	return s.get(ctx, id)
}

// DriverRides lists the driver's rides, active ones only unless history is set.
func (s *Service) DriverRides(ctx context.Context, driverID types.ID, history bool) ([]Ride, error) {
	var out []Ride
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.ListByDriver(ctx, driverID, !history)
		return err
	})
	return out, err
}

// HasActiveRide reports whether the driver is assigned to a ride that is
// driver_assigned, in_progress or on_site. Pending rides the driver created
// do not count.
func (s *Service) HasActiveRide(ctx context.Context, driverID types.ID) (bool, error) {
	rides, err := s.store.ListByDriver(ctx, driverID, true)
	if err != nil {
		return false, err
	}
	for i := range rides {
		if rides[i].Status.Active() && rides[i].isDriver(driverID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) PassengerRides(ctx context.Context, passengerID types.ID, history bool) ([]Ride, error) {
	var out []Ride
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.ListByPassenger(ctx, passengerID, !history)
		return err
	})
	return out, err
}

func (s *Service) DriverDetails(ctx context.Context, driverID types.ID) (*profile.Driver, error) {
	if s.profiles == nil {
		return nil, profile.ErrNotFound
	}
	var d *profile.Driver
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.profiles.GetDriver(ctx, driverID)
		return err
	})
	return d, err
}

func (s *Service) driverStep(ctx context.Context, cmd RideCommand, to Status) (*Ride, error) {
	if err := types.RequireRole(cmd.Actor, types.RoleDriver); err != nil {
		return nil, err
	}
	r, from, err := s.apply(ctx, cmd.RideID, func(r *Ride) error {
		if !CanTransition(r.Status, to) {
			return invalidTransition(r.Status, to)
		}
		if !r.isDriver(cmd.Actor.ID) {
			return errNotParticipant
		}
		r.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, r, from, cmd.Actor)
	return r, nil
}

// apply runs mutate on a fresh copy of the ride and commits it with CAS on
// version. A lost CAS re-reads and re-runs mutate once, so the loser sees the
// winner's state; losing twice surfaces CONFLICT.
func (s *Service) apply(ctx context.Context, id types.ID, mutate func(r *Ride) error) (*Ride, Status, error) {
	for attempt := 0; attempt < 2; attempt++ {
		cur, err := s.get(ctx, id)
		if err != nil {
			return nil, StatusNone, err
		}
		next := cur.clone()
		if err := mutate(next); err != nil {
			return nil, StatusNone, err
		}
		next.UpdatedAt = s.now().UTC()

		var ok bool
		err = s.storeCall(ctx, func(ctx context.Context) error {
			var err error
			ok, err = s.store.UpdateCAS(ctx, next, cur.Version)
			return err
		})
		if err != nil {
			return nil, StatusNone, err
		}
		if ok {
			next.Version = cur.Version + 1
			return next, cur.Status, nil
		}
	}
	return nil, StatusNone, errConflict
}

func (s *Service) newRide(cmd CreateCommand, status Status) (*Ride, error) {
	pt, err := ParsePaymentType(string(cmd.PaymentType))
	if err != nil {
		return nil, err
	}
	q, err := s.pricing.Quote(cmd.Origin, cmd.Destination)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &Ride{
		ID:              s.newID(),
		CreatedBy:       cmd.Actor.ID,
		Origin:          cmd.Origin,
		Destination:     cmd.Destination,
		OriginName:      strings.TrimSpace(cmd.OriginName),
		DestinationName: strings.TrimSpace(cmd.DestinationName),
		City:            strings.TrimSpace(cmd.City),
		DistanceKm:      q.DistanceKm,
		Price:           q.Price,
		PaymentType:     pt,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *Service) get(ctx context.Context, id types.ID) (*Ride, error) {
	var r *Ride
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.store.Get(ctx, id)
		return err
	})
	return r, err
}

func (s *Service) create(ctx context.Context, r *Ride) error {
	return s.storeCall(ctx, func(ctx context.Context) error {
		return s.store.Create(ctx, r)
	})
}

func (s *Service) storeCall(ctx context.Context, fn func(ctx context.Context) error) error {
	return errs.WithTimeout(ctx, s.cfg.StoreTimeout, fn)
}

// record appends the audit event and publishes it. The ride is already
// committed, so failures here are logged only and a caller going away does not
// stop them.
func (s *Service) record(ctx context.Context, r *Ride, from Status, actor types.Actor) {
	ctx = context.WithoutCancel(ctx)
	e := &Event{
		RideID:    r.ID,
		From:      from,
		To:        r.Status,
		ActorRole: actor.Role,
		ActorID:   types.IDPtr(actor.ID),
		At:        r.UpdatedAt,
	}
	log := s.log.WithFields(logrus.Fields{"ride_id": r.ID, "from": from, "to": r.Status})

	if err := s.storeCall(ctx, func(ctx context.Context) error { return s.store.AppendEvent(ctx, e) }); err != nil {
		log.WithError(err).Error("append ride event")
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, *e); err != nil {
			log.WithError(err).Warn("publish ride event")
		}
	}
	s.metrics.transition(from, r.Status)
	log.Info("ride transition")
}

// release frees the driver after a committed ride reached a final status.
// It runs detached from the caller; a release that still fails is repaired by
// the presence reindexer.
func (s *Service) release(ctx context.Context, driverID types.ID) {
	if err := s.presence.ReleaseRide(context.WithoutCancel(ctx), driverID); err != nil {
		s.log.WithError(err).WithField("driver_id", driverID).Error("release driver")
	}
}

func (s *Service) observe(op string, err *error) {
	if *err == nil {
		return
	}
	code := errs.CodeOf(*err)
	s.metrics.failure(op, string(code))
	if code == errs.CodeInternal && !errors.Is(*err, context.Canceled) {
		s.log.WithError(*err).WithField("op", op).Error("ride operation failed")
	}
}
