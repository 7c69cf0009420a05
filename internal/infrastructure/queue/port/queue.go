package port

import (
	"context"
	"time"
)

// Task is a queue message with a stable type identifier and opaque payload
// bytes. Payload encoding is up to callers; the port stays free of
// serialization concerns.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error signals retry per adapter policy,
// so handlers must be idempotent. Handlers that reject a malformed payload
// should return nil after logging; retrying cannot fix a bad payload.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption controls enqueue behavior. Zero values mean "unspecified".
type EnqueueOption struct {
	Queue     string        // logical queue name
	ProcessIn time.Duration // delay before processing
	MaxRetry  int           // max retries for the task
}

// Client enqueues tasks for processing by a Server.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs workers that handle tasks. Run blocks until the context is
// canceled or Stop is called.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}
