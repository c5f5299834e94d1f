// Package notify renders and sends the transactional emails of the
// reservation lifecycle.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-reservation/internal/queue"
)

// Email is one rendered message.
type Email struct {
	To            string
	Subject       string
	HTML          string
	Kind          string
	ReservationID uint64
}

// Gateway delivers an email.  Implementations must honour ctx.
type Gateway interface {
	SendEmail(ctx context.Context, email Email) error
}

// ErrNoRecipient is returned when an email has no address to go to.
var ErrNoRecipient = errors.New("notify: email has no recipient")

// JobPublisher is the part of queue.Publisher the QueueGateway needs.
type JobPublisher interface {
	Publish(ctx context.Context, job queue.EmailJob) error
}

// QueueGateway hands emails to the background worker through RabbitMQ.
type QueueGateway struct {
	pub JobPublisher
	now func() time.Time
}

// NewQueueGateway returns a gateway publishing through pub.
func NewQueueGateway(pub JobPublisher) *QueueGateway {
	return &QueueGateway{pub: pub, now: time.Now}
}

// SendEmail implements Gateway.
func (g *QueueGateway) SendEmail(ctx context.Context, email Email) error {
	if email.To == "" {
		return ErrNoRecipient
	}
	return g.pub.Publish(ctx, queue.EmailJob{
		ID:            uuid.NewString(),
		Kind:          email.Kind,
		ReservationID: email.ReservationID,
		To:            email.To,
		Subject:       email.Subject,
		HTML:          email.HTML,
		QueuedAt:      g.now().UTC(),
	})
}

// LogGateway only logs emails.  Used in development and when no
// transport is configured.
type LogGateway struct {
	log *zap.Logger
}

// NewLogGateway returns a gateway writing to log.
func NewLogGateway(log *zap.Logger) *LogGateway {
	return &LogGateway{log: log}
}

// SendEmail implements Gateway.
func (g *LogGateway) SendEmail(_ context.Context, email Email) error {
	if email.To == "" {
		return ErrNoRecipient
	}
	g.log.Info("email (log transport)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.String("kind", email.Kind),
		zap.Uint64("reservation_id", email.ReservationID),
	)
	return nil
}

// DeliverJob adapts a Gateway into the email worker's handler.
func DeliverJob(g Gateway) queue.HandlerFunc {
	return func(ctx context.Context, job queue.EmailJob) error {
		return g.SendEmail(ctx, Email{
			To:            job.To,
			Subject:       job.Subject,
			HTML:          job.HTML,
			Kind:          job.Kind,
			ReservationID: job.ReservationID,
		})
	}
}
