package service

import (
	"github.com/iliyamo/tourism-reservation/internal/model"
)

// Effect is the notification side effect a lifecycle step asks for.
type Effect int

const (
	EffectNone Effect = iota
	EffectConfirmationEmail
	EffectReminderEmail
)

// String returns the email kind the effect produces.
func (e Effect) String() string {
	switch e {
	case EffectConfirmationEmail:
		return "confirmation"
	case EffectReminderEmail:
		return "reminder"
	}
	return "none"
}

// transitions lists the allowed (current, next) status pairs.  Staying
// in the current state is always allowed and has no effect.
var transitions = map[model.Status]map[model.Status]bool{
	model.StatusPending: {
		model.StatusConfirmed: true,
		model.StatusCancelled: true,
	},
	model.StatusConfirmed: {
		model.StatusCompleted: true,
		model.StatusCancelled: true,
	},
}

// CanTransition reports whether a reservation in from may move to to.
func CanTransition(from, to model.Status) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}

// Step is the outcome of planning a status request against the current
// state of a reservation.
type Step struct {
	Next    model.Status
	Persist bool
	Effect  Effect
}

// Lifecycle interprets status requests.  It holds no state.
type Lifecycle struct{}

// Plan resolves a requested status (or the reminder action) against the
// current status.  It returns a *model.TransitionError when the table
// forbids the move and a *model.ValidationError for unknown values.
func (Lifecycle) Plan(current model.Status, requested string) (Step, error) {
	if model.IsReminder(requested) {
		if current.Terminal() {
			return Step{}, &model.TransitionError{From: current, To: model.ReminderAction}
		}
		return Step{Next: current, Effect: EffectReminderEmail}, nil
	}
	next, ok := model.ParseStatus(requested)
	if !ok {
		return Step{}, model.NewValidationError("status", "must be one of pending, confirmed, cancelled, completed, rappler")
	}
	if !CanTransition(current, next) {
		return Step{}, &model.TransitionError{From: current, To: string(next)}
	}
	if next == current {
		return Step{Next: current}, nil
	}
	step := Step{Next: next, Persist: true}
	if next == model.StatusConfirmed {
		step.Effect = EffectConfirmationEmail
	}
	return step, nil
}
