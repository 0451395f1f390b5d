package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope that actually crosses the queue boundary.
// ID is always set once the message has been published.
type Message[T any] struct {
	ID      string
	Payload T
	SendAt  *time.Time
}

// Handler is invoked once per dequeued message.
type Handler[T any] func(ctx context.Context, msg Message[T]) error

// MessageQueue decouples producers from the delivery mechanism.
//
// Publish returns once the backing store has acknowledged the write.
// Every registered handler sees every message; the first Subscribe starts
// consumption.
type MessageQueue[T any] interface {
	Publish(ctx context.Context, msg Message[T]) error
	Subscribe(h Handler[T])
}

// EnsureID returns msg with a freshly generated ID when it has none.
func EnsureID[T any](msg Message[T]) Message[T] {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return msg
}
