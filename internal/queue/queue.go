package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind names a pipeline stage handed off between services.
type Kind string

// Pipeline task kinds.
const (
	KindPrescreen        Kind = "prescreen"
	KindAssignTests      Kind = "assign_tests"
	KindAssessSubmission Kind = "assess_submission"
)

// Driver names accepted by New.
const (
	DriverLocal    = "local"
	DriverNATS     = "nats"
	DriverRabbitMQ = "rabbitmq"
)

// ErrClosed is returned when dispatching to a stopped queue.
var ErrClosed = errors.New("queue is closed")

// Task is a unit of pipeline work. Handlers must be idempotent: a task may be delivered more than once.
type Task struct {
	Kind          Kind      `json:"kind"`
	ApplicationID uint      `json:"application_id,omitempty"`
	SubmissionID  uint      `json:"submission_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Handler processes one task.
type Handler func(ctx context.Context, task Task) error

// Dispatcher enqueues tasks without waiting for them to run.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// Queue is a Dispatcher with a consuming side.
type Queue interface {
	Dispatcher
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}

func encodeTask(task Task) ([]byte, error) {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	return json.Marshal(task)
}

func decodeTask(payload []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	if task.Kind == "" {
		return Task{}, fmt.Errorf("decode task: missing kind")
	}
	return task, nil
}
