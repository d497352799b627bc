package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const rabbitPublishTimeout = 5 * time.Second

// RabbitQueue publishes tasks to a durable queue and consumes them with manual acknowledgement.
type RabbitQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  zerolog.Logger

	mu       sync.Mutex
	consumer string
	wg       sync.WaitGroup
}

// NewRabbitQueue dials the broker and declares the durable task queue.
func NewRabbitQueue(url, queueName string, prefetch int, logger zerolog.Logger) (*RabbitQueue, error) {
	if url == "" {
		return nil, fmt.Errorf("rabbitmq url must not be empty")
	}
	if queueName == "" {
		queueName = "screening.pipeline"
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set rabbitmq prefetch: %w", err)
		}
	}

	return &RabbitQueue{
		conn:    conn,
		channel: ch,
		queue:   q,
		logger:  logger.With().Str("component", "rabbitmq_queue").Logger(),
	}, nil
}

func (q *RabbitQueue) Dispatch(ctx context.Context, task Task) error {
	body, err := encodeTask(task)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, rabbitPublishTimeout)
	defer cancel()

	return q.channel.PublishWithContext(publishCtx, "", q.queue.Name, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: task.CorrelationID,
		Body:          body,
	})
}

// Start registers a consumer. Failed tasks are nacked without requeue; malformed payloads are dropped.
func (q *RabbitQueue) Start(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consumer != "" {
		return nil
	}

	consumer := "screening-" + time.Now().UTC().Format("20060102150405.000000")
	deliveries, err := q.channel.Consume(q.queue.Name, consumer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register rabbitmq consumer: %w", err)
	}
	q.consumer = consumer

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range deliveries {
			task, err := decodeTask(d.Body)
			if err != nil {
				q.logger.Warn().Err(err).Msg("invalid pipeline task payload")
				_ = d.Nack(false, false)
				continue
			}
			if err := run(ctx, DriverRabbitMQ, handler, task, q.logger); err != nil {
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}()
	return nil
}

func (q *RabbitQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	consumer := q.consumer
	q.consumer = ""
	q.mu.Unlock()

	if consumer != "" {
		if err := q.channel.Cancel(consumer, false); err != nil {
			q.logger.Warn().Err(err).Msg("failed to cancel rabbitmq consumer")
		}
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	_ = q.channel.Close()
	return q.conn.Close()
}
