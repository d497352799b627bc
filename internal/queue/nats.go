package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const natsQueueGroup = "screening-workers"

// NATSQueue publishes tasks to a subject consumed by a queue group, so each task reaches one worker.
type NATSQueue struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewNATSQueue wraps an established connection.
func NewNATSQueue(conn *nats.Conn, subject string, logger zerolog.Logger) (*NATSQueue, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection must not be nil")
	}
	if subject == "" {
		subject = "screening.pipeline"
	}
	return &NATSQueue{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "nats_queue").Logger(),
	}, nil
}

func (q *NATSQueue) Dispatch(ctx context.Context, task Task) error {
	if q.conn.IsClosed() {
		return ErrClosed
	}
	payload, err := encodeTask(task)
	if err != nil {
		return err
	}
	return q.conn.Publish(q.subject, payload)
}

func (q *NATSQueue) Start(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sub != nil {
		return nil
	}

	sub, err := q.conn.QueueSubscribe(q.subject, natsQueueGroup, func(msg *nats.Msg) {
		task, err := decodeTask(msg.Data)
		if err != nil {
			q.logger.Warn().Err(err).Msg("invalid pipeline task payload")
			return
		}
		_ = run(ctx, DriverNATS, handler, task, q.logger)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", q.subject, err)
	}
	q.sub = sub
	return nil
}

// Stop drains the subscription so in-flight messages finish before the connection closes.
func (q *NATSQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	sub := q.sub
	q.sub = nil
	q.mu.Unlock()

	if sub != nil {
		if err := sub.Drain(); err != nil {
			q.logger.Warn().Err(err).Msg("failed to drain pipeline subscription")
		}
	}
	return q.conn.Drain()
}
