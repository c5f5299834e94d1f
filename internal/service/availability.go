package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

// EntityStore looks up the bookable entities.  Missing rows are reported
// as *model.NotFoundError.
type EntityStore interface {
	GetPlaceByID(ctx context.Context, id uint64) (*model.Place, error)
	GetEventByID(ctx context.Context, id uint64) (*model.Event, error)
}

// BookingCounter aggregates existing non-cancelled reservations.
type BookingCounter interface {
	BookedQuantity(ctx context.Context, eventID uint64) (int, error)
	PlaceBookingsOn(ctx context.Context, placeID uint64, day time.Time) (int, error)
}

// AvailabilityChecker answers whether a booking request can be satisfied.
// It is read-only and not serialised against concurrent writers; the
// store repeats the check inside its transaction.
type AvailabilityChecker struct {
	entities EntityStore
	counter  BookingCounter
}

// NewAvailabilityChecker wires the checker to its data sources.
func NewAvailabilityChecker(entities EntityStore, counter BookingCounter) *AvailabilityChecker {
	return &AvailabilityChecker{entities: entities, counter: counter}
}

// Check reports whether quantity units of the entity are available.  A
// missing entity is unavailable rather than an error.  Places require a
// date.
func (a *AvailabilityChecker) Check(ctx context.Context, kind model.TargetKind, entityID uint64, date *time.Time, quantity int) (bool, error) {
	if quantity < 1 {
		return false, model.NewValidationError("numberOfTickets", "must be at least 1")
	}
	var (
		entity model.Entity
		err    error
	)
	switch kind {
	case model.KindEvent:
		entity, err = a.entities.GetEventByID(ctx, entityID)
	case model.KindPlace:
		if date == nil {
			return false, model.NewValidationError("date", "is required for places")
		}
		entity, err = a.entities.GetPlaceByID(ctx, entityID)
	default:
		return false, model.NewValidationError("entityType", "must be event or place")
	}
	if err != nil {
		return notFoundAsUnavailable(err)
	}
	return a.CheckEntity(ctx, entity, date, quantity)
}

// CheckEntity runs the availability rule for an already loaded entity.
func (a *AvailabilityChecker) CheckEntity(ctx context.Context, entity model.Entity, date *time.Time, quantity int) (bool, error) {
	if quantity < 1 {
		return false, model.NewValidationError("numberOfTickets", "must be at least 1")
	}
	switch e := entity.(type) {
	case *model.Event:
		booked, err := a.counter.BookedQuantity(ctx, e.ID)
		if err != nil {
			return false, err
		}
		return model.EventHasRoom(e.Capacity, booked, quantity), nil
	case *model.Place:
		if date == nil {
			return false, model.NewValidationError("date", "is required for places")
		}
		n, err := a.counter.PlaceBookingsOn(ctx, e.ID, *date)
		if err != nil {
			return false, err
		}
		return model.PlaceDayFree(n), nil
	default:
		return false, model.NewValidationError("entityType", "must be event or place")
	}
}

func notFoundAsUnavailable(err error) (bool, error) {
	var nf *model.NotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, err
}
