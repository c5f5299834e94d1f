package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the persisted lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ReminderAction is the status value clients send to request a visit
// reminder email.  It never reaches the reservations table.
const ReminderAction = "rappler"

// reminderAlias is accepted alongside ReminderAction.
const reminderAlias = "reminder"

// IsReminder reports whether a requested status is the reminder action.
func IsReminder(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == ReminderAction || s == reminderAlias
}

// ParseStatus normalises a stored or requested status.  The reminder
// action is not a Status and is rejected here.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition can leave the state.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// TargetKind names the kind of entity a reservation books against.
type TargetKind string

const (
	KindEvent TargetKind = "event"
	KindPlace TargetKind = "place"
)

// ParseTargetKind accepts "event" or "place" in any case.
func ParseTargetKind(s string) (TargetKind, bool) {
	switch k := TargetKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindEvent, KindPlace:
		return k, true
	}
	return "", false
}

// BookingTarget identifies the single entity a reservation applies to.
// A reservation holds exactly one target, so the "both ids set" and
// "no id set" states cannot be expressed.
type BookingTarget struct {
	Kind TargetKind
	ID   uint64
}

// EventTarget returns a target pointing at an event.
func EventTarget(id uint64) BookingTarget { return BookingTarget{Kind: KindEvent, ID: id} }

// PlaceTarget returns a target pointing at a place.
func PlaceTarget(id uint64) BookingTarget { return BookingTarget{Kind: KindPlace, ID: id} }

// Key is the lock key used to serialise writers on the same entity.
func (t BookingTarget) Key() string { return fmt.Sprintf("%s:%d", t.Kind, t.ID) }

// EventID returns the event id, or nil when the target is a place.
func (t BookingTarget) EventID() *uint64 {
	if t.Kind != KindEvent {
		return nil
	}
	id := t.ID
	return &id
}

// PlaceID returns the place id, or nil when the target is an event.
func (t BookingTarget) PlaceID() *uint64 {
	if t.Kind != KindPlace {
		return nil
	}
	id := t.ID
	return &id
}

// Reservation is a booking of an event ticket or a place visit.
//
// Fields:
//
//	ID         – primary key, assigned by the database.
//	UserID     – owning user.
//	Target     – the booked event or place.
//	Quantity   – tickets (event) or persons (place), at least 1.
//	VisitDate  – the moment the reservation applies to (UTC).
//	TotalPrice – computed at creation, two decimals, never recomputed.
//	Status     – current lifecycle state.
//	CreatedAt  – creation timestamp.
//	UpdatedAt  – refreshed on every mutating update.
type Reservation struct {
	ID         uint64
	UserID     uint64
	Target     BookingTarget
	Quantity   int
	VisitDate  time.Time
	TotalPrice decimal.Decimal
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReservationPatch carries the mutable fields of a partial update.  Nil
// fields are left untouched.  The target and the price are not patchable.
type ReservationPatch struct {
	Status    *Status
	Quantity  *int
	VisitDate *time.Time
}

// Empty reports whether the patch changes nothing.
func (p ReservationPatch) Empty() bool {
	return p.Status == nil && p.Quantity == nil && p.VisitDate == nil
}

// ApplyTo copies the non-nil fields of the patch onto r.
func (p ReservationPatch) ApplyTo(r *Reservation) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Quantity != nil {
		r.Quantity = *p.Quantity
	}
	if p.VisitDate != nil {
		r.VisitDate = p.VisitDate.UTC()
	}
}

// DateField selects which timestamp a list date range applies to.
type DateField string

const (
	DateFieldVisit   DateField = "visitDate"
	DateFieldCreated DateField = "createdAt"
)

// ReservationFilter narrows a reservation listing.  All set fields are
// combined with AND.
type ReservationFilter struct {
	UserID    *uint64
	PlaceID   *uint64
	EventID   *uint64
	Status    *Status
	FromDate  *time.Time
	ToDate    *time.Time
	DateField DateField
	Limit     int
	Offset    int
}

// CreateReservationInput is the validated shape of a creation request.
type CreateReservationInput struct {
	UserID    uint64
	EventID   *uint64
	PlaceID   *uint64
	Quantity  *int
	Status    string
	VisitDate *time.Time
}

// UpdateReservationInput is the shape of a partial update request.
// Status may carry the reminder action.
type UpdateReservationInput struct {
	Status    *string
	Quantity  *int
	VisitDate *time.Time
}
