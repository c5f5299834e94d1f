package model

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports malformed or missing input.  Fields maps a
// request field name to a human readable problem.  Handlers translate it
// into HTTP 400.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Add records another field problem and returns the receiver.
func (e *ValidationError) Add(field, msg string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError reports that a referenced event, place, user or
// reservation does not exist.  Handlers translate it into HTTP 404.
type NotFoundError struct {
	Entity string
	ID     uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Availability reasons surfaced to clients.
const (
	ReasonNotEnoughTickets  = "Not enough tickets available"
	ReasonPlaceNotAvailable = "Place not available for this date"
)

// AvailabilityError reports that capacity or the requested day is
// already taken.  Handlers translate it into HTTP 400.
type AvailabilityError struct {
	Reason string
}

func (e *AvailabilityError) Error() string { return e.Reason }

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	From Status
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

// PersistenceError wraps a storage failure.  Its message is never sent
// to clients; handlers answer with a generic 500.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotificationError wraps an email delivery failure.  It is logged and
// never returned to the caller of a lifecycle operation.
type NotificationError struct {
	Kind string
	Err  error
}

func (e *NotificationError) Error() string { return e.Kind + " notification: " + e.Err.Error() }

func (e *NotificationError) Unwrap() error { return e.Err }
