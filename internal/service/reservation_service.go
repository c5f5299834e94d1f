package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/tourism-reservation/internal/model"
	"github.com/iliyamo/tourism-reservation/internal/notify"
)

// Paging bounds for List.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// DefaultNotifyTimeout bounds a single notification send.
const DefaultNotifyTimeout = 3 * time.Second

// ReservationStore persists reservations.  Create and Apply are atomic:
// they re-check availability under a row lock and either commit fully or
// leave nothing behind.
type ReservationStore interface {
	BookingCounter
	Create(ctx context.Context, r *model.Reservation) error
	Apply(ctx context.Context, id uint64, mutate func(*model.Reservation) error) (*model.Reservation, error)
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error)
}

// UserStore resolves the owner of a reservation for notifications.
type UserStore interface {
	FindUserByID(ctx context.Context, id uint64) (*model.User, error)
}

// entityInvalidator is implemented by cached entity readers.
type entityInvalidator interface {
	Invalidate(ctx context.Context, t model.BookingTarget) error
}

// ReservationServiceConfig collects the collaborators of a
// ReservationService.  Store, Entities, Users and Gateway are required.
// Entities may be cached; LiveEntities must read the tables directly and
// serves every availability decision.  It defaults to Entities.
type ReservationServiceConfig struct {
	Store         ReservationStore
	Entities      EntityStore
	LiveEntities  EntityStore
	Users         UserStore
	Gateway       notify.Gateway
	Locker        Locker
	Pricer        *PriceCalculator
	NotifyTimeout time.Duration
	Logger        *zap.Logger
}

// ReservationService creates reservations and drives their lifecycle.
type ReservationService struct {
	store         ReservationStore
	entities      EntityStore
	live          EntityStore
	users         UserStore
	gateway       notify.Gateway
	locker        Locker
	pricer        *PriceCalculator
	checker       *AvailabilityChecker
	lifecycle     Lifecycle
	notifyTimeout time.Duration
	log           *zap.Logger
	now           func() time.Time
}

// NewReservationService wires a service.  Optional collaborators get
// defaults: an in-process locker, the default entrance fee, a 3s
// notification timeout and a no-op logger.
func NewReservationService(cfg ReservationServiceConfig) *ReservationService {
	if cfg.Store == nil || cfg.Entities == nil || cfg.Users == nil || cfg.Gateway == nil {
		panic("service: ReservationService requires store, entities, users and gateway")
	}
	if cfg.LiveEntities == nil {
		cfg.LiveEntities = cfg.Entities
	}
	if cfg.Locker == nil {
		cfg.Locker = NewLocalLocker()
	}
	if cfg.Pricer == nil {
		cfg.Pricer = NewPriceCalculator(DefaultEntranceFee)
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ReservationService{
		store:         cfg.Store,
		entities:      cfg.Entities,
		live:          cfg.LiveEntities,
		users:         cfg.Users,
		gateway:       cfg.Gateway,
		locker:        cfg.Locker,
		pricer:        cfg.Pricer,
		checker:       NewAvailabilityChecker(cfg.LiveEntities, cfg.Store),
		notifyTimeout: cfg.NotifyTimeout,
		log:           cfg.Logger,
		now:           time.Now,
	}
}

// Create validates a booking request, prices it and persists it as a
// pending reservation.  Unknown targets are rejected from the entity
// cache before locking.  Under the entity lock the entity row is read
// again uncached, checked, priced and inserted; the store repeats the
// check inside its transaction.
func (s *ReservationService) Create(ctx context.Context, in model.CreateReservationInput) (*model.Reservation, error) {
	target, qty, err := validateCreate(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadEntity(ctx, s.entities, target); err != nil {
		return nil, err
	}

	visit := s.now().UTC()
	if in.VisitDate != nil {
		visit = in.VisitDate.UTC()
	}

	unlock, err := s.locker.Lock(ctx, target.Key())
	if err != nil {
		return nil, &model.PersistenceError{Op: "lock " + target.Key(), Err: err}
	}
	defer unlock()

	entity, err := s.loadEntity(ctx, s.live, target)
	if err != nil {
		s.forgetMissing(ctx, target, err)
		return nil, err
	}
	ok, err := s.checker.CheckEntity(ctx, entity, &visit, qty)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, unavailable(target.Kind)
	}
	price := s.pricer.ComputePrice(entity, qty)

	r := &model.Reservation{
		UserID:     in.UserID,
		Target:     target,
		Quantity:   qty,
		VisitDate:  visit,
		TotalPrice: price,
		Status:     model.StatusPending,
	}
	if err := s.store.Create(ctx, r); err != nil {
		s.forgetMissing(ctx, target, err)
		return nil, err
	}
	s.log.Info("reservation created",
		zap.Uint64("reservation_id", r.ID),
		zap.Uint64("user_id", r.UserID),
		zap.String("target", target.Key()),
		zap.Int("quantity", r.Quantity),
		zap.String("total_price", r.TotalPrice.StringFixed(2)),
	)
	return r, nil
}

// Update applies a partial update.  A status of "rappler" only sends the
// reminder email; other statuses go through the transition table.  The
// confirmation email is sent after the change has been committed.
func (s *ReservationService) Update(ctx context.Context, id uint64, in model.UpdateReservationInput) (*model.Reservation, error) {
	if err := validateUpdate(in); err != nil {
		return nil, err
	}

	if in.Status != nil && model.IsReminder(*in.Status) {
		r, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		step, err := s.lifecycle.Plan(r.Status, *in.Status)
		if err != nil {
			return nil, err
		}
		s.notify(ctx, r, step.Effect)
		return r, nil
	}

	// Quantity and date changes are re-checked by the store; hold the
	// entity lock so they serialise with concurrent creates.
	if in.Quantity != nil || in.VisitDate != nil {
		current, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		unlock, err := s.locker.Lock(ctx, current.Target.Key())
		if err != nil {
			return nil, &model.PersistenceError{Op: "lock " + current.Target.Key(), Err: err}
		}
		defer unlock()
	}

	var step Step
	updated, err := s.store.Apply(ctx, id, func(r *model.Reservation) error {
		step = Step{Next: r.Status}
		if in.Status != nil {
			planned, err := s.lifecycle.Plan(r.Status, *in.Status)
			if err != nil {
				return err
			}
			step = planned
		}
		if !step.Persist && in.Quantity == nil && in.VisitDate == nil {
			return nil
		}
		patch := model.ReservationPatch{Quantity: in.Quantity, VisitDate: in.VisitDate}
		if step.Persist {
			patch.Status = &step.Next
		}
		patch.ApplyTo(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reservation updated",
		zap.Uint64("reservation_id", updated.ID),
		zap.String("status", string(updated.Status)),
	)
	s.notify(ctx, updated, step.Effect)
	return updated, nil
}

// Get returns one reservation.
func (s *ReservationService) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.store.GetByID(ctx, id)
}

// Delete removes a reservation unconditionally.
func (s *ReservationService) Delete(ctx context.Context, id uint64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("reservation deleted", zap.Uint64("reservation_id", id))
	return nil
}

// List returns reservations matching f, newest first.
func (s *ReservationService) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	if f.Limit < 0 || f.Limit > MaxListLimit {
		return nil, model.NewValidationError("limit", "must be between 1 and 500")
	}
	if f.Offset < 0 {
		return nil, model.NewValidationError("offset", "must not be negative")
	}
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	switch f.DateField {
	case "":
		f.DateField = model.DateFieldVisit
	case model.DateFieldVisit, model.DateFieldCreated:
	default:
		return nil, model.NewValidationError("dateField", "must be visitDate or createdAt")
	}
	if f.FromDate != nil && f.ToDate != nil && f.ToDate.Before(*f.FromDate) {
		return nil, model.NewValidationError("toDate", "must not be before fromDate")
	}
	return s.store.List(ctx, f)
}

// CheckAvailability answers the read-only availability query.
func (s *ReservationService) CheckAvailability(ctx context.Context, kind model.TargetKind, entityID uint64, date *time.Time, quantity int) (bool, error) {
	return s.checker.Check(ctx, kind, entityID, date, quantity)
}

func (s *ReservationService) loadEntity(ctx context.Context, from EntityStore, t model.BookingTarget) (model.Entity, error) {
	switch t.Kind {
	case model.KindEvent:
		return from.GetEventByID(ctx, t.ID)
	default:
		return from.GetPlaceByID(ctx, t.ID)
	}
}

// forgetMissing drops the cached copy of a target the database no longer
// has.
func (s *ReservationService) forgetMissing(ctx context.Context, t model.BookingTarget, err error) {
	var nf *model.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != string(t.Kind) || nf.ID != t.ID {
		return
	}
	inv, ok := s.entities.(entityInvalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(context.WithoutCancel(ctx), t); err != nil {
		s.log.Warn("entity cache invalidation failed", zap.String("target", t.Key()), zap.Error(err))
	}
}

// notify sends the email an effect asks for.  It runs after commit with
// its own deadline; failures are logged and swallowed.
func (s *ReservationService) notify(ctx context.Context, r *model.Reservation, effect Effect) {
	if effect == EffectNone {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.sendEmail(ctx, r, effect); err != nil {
		nerr := &model.NotificationError{Kind: effect.String(), Err: err}
		s.log.Warn("reservation notification failed",
			zap.Uint64("reservation_id", r.ID),
			zap.Error(nerr),
		)
	}
}

func (s *ReservationService) sendEmail(ctx context.Context, r *model.Reservation, effect Effect) error {
	user, err := s.users.FindUserByID(ctx, r.UserID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return notify.ErrNoRecipient
	}
	var title string
	if r.Target.Kind == model.KindEvent {
		if ev, err := s.entities.GetEventByID(ctx, r.Target.ID); err == nil {
			title = ev.Title
		}
	}
	email, err := notify.Render(effect.String(), user.Email, notify.NewMessageData(r, user, title))
	if err != nil {
		return err
	}
	return s.gateway.SendEmail(ctx, email)
}

func unavailable(kind model.TargetKind) error {
	if kind == model.KindPlace {
		return &model.AvailabilityError{Reason: model.ReasonPlaceNotAvailable}
	}
	return &model.AvailabilityError{Reason: model.ReasonNotEnoughTickets}
}

// validateCreate checks the shape of a creation request and returns the
// booking target and quantity.  numberOfTickets defaults to 1.
func validateCreate(in model.CreateReservationInput) (model.BookingTarget, int, error) {
	verr := &model.ValidationError{}
	if in.UserID == 0 {
		verr.Add("userId", "is required")
	}
	var target model.BookingTarget
	switch {
	case in.EventID != nil && in.PlaceID != nil:
		verr.Add("eventId", "exactly one of eventId and placeId must be set")
	case in.EventID != nil:
		if *in.EventID == 0 {
			verr.Add("eventId", "must be a positive id")
		}
		target = model.EventTarget(*in.EventID)
	case in.PlaceID != nil:
		if *in.PlaceID == 0 {
			verr.Add("placeId", "must be a positive id")
		}
		target = model.PlaceTarget(*in.PlaceID)
	default:
		verr.Add("eventId", "exactly one of eventId and placeId must be set")
	}
	qty := 1
	if in.Quantity != nil {
		qty = *in.Quantity
		if qty < 1 {
			verr.Add("numberOfTickets", "must be at least 1")
		}
	}
	if in.Status != "" {
		if st, ok := model.ParseStatus(in.Status); !ok || st != model.StatusPending {
			verr.Add("status", "new reservations start as pending")
		}
	}
	if len(verr.Fields) > 0 {
		return model.BookingTarget{}, 0, verr
	}
	return target, qty, nil
}

func validateUpdate(in model.UpdateReservationInput) error {
	verr := &model.ValidationError{}
	if in.Status == nil && in.Quantity == nil && in.VisitDate == nil {
		verr.Add("body", "nothing to update")
	}
	if in.Quantity != nil && *in.Quantity < 1 {
		verr.Add("numberOfTickets", "must be at least 1")
	}
	if in.Status != nil && model.IsReminder(*in.Status) && (in.Quantity != nil || in.VisitDate != nil) {
		verr.Add("status", "the reminder action cannot be combined with field changes")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
