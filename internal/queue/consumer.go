package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultJobTimeout bounds the delivery of a single email job.
const DefaultJobTimeout = 30 * time.Second

// HandlerFunc delivers one email job.
type HandlerFunc func(ctx context.Context, job EmailJob) error

// Worker consumes the email queue and hands each job to a HandlerFunc.
// Run keeps reconnecting with exponential backoff until ctx is done.
type Worker struct {
	url        string
	queue      string
	prefetch   int
	jobTimeout time.Duration
	handle     HandlerFunc
	log        *zap.Logger
}

// NewWorker returns a Worker for the given broker URL and queue.
func NewWorker(url, queue string, handle HandlerFunc, log *zap.Logger) *Worker {
	if queue == "" {
		queue = DefaultEmailQueue
	}
	return &Worker{url: url, queue: queue, prefetch: 50, jobTimeout: DefaultJobTimeout, handle: handle, log: log}
}

// Run blocks until ctx is cancelled.  Broker failures are logged and the
// connection is retried; processing errors reject the offending message
// so the worker keeps going.
func (w *Worker) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(w.url)
		if err != nil {
			w.log.Warn("email-worker: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = w.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("email-worker: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (w *Worker) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		w.log.Warn("email-worker: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(w.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(w.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := w.handleMessage(ctx, d.Body); err != nil {
				w.log.Error("email-worker: handle message failed", zap.String("message_id", d.MessageId), zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, body []byte) error {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if job.To == "" {
		return errors.New("email job without recipient")
	}
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	if err := w.handle(jobCtx, job); err != nil {
		return fmt.Errorf("deliver %s email for reservation %d: %w", job.Kind, job.ReservationID, err)
	}
	w.log.Info("email delivered",
		zap.String("kind", job.Kind),
		zap.Uint64("reservation_id", job.ReservationID),
		zap.String("job_id", job.ID),
	)
	return nil
}

// sleep waits for d or until ctx is done.  It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
