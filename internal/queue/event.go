// Package queue carries reservation emails over RabbitMQ: the publisher
// used by the notification gateway and the worker that delivers them.
package queue

import "time"

// Email kinds carried in EmailJob.Kind.
const (
	KindConfirmation = "confirmation"
	KindReminder     = "reminder"
)

// EmailJob is one queued transactional email.  It carries the rendered
// message so the worker needs no database access.
type EmailJob struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	ReservationID uint64    `json:"reservationId"`
	To            string    `json:"to"`
	Subject       string    `json:"subject"`
	HTML          string    `json:"html"`
	QueuedAt      time.Time `json:"queuedAt"`
}
