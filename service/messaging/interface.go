// Package messaging defines the abstract queue the engine uses to hand
// reporter events (and any other payload) between components without shared
// state.
package messaging

import (
	"context"
)

// Vendor represents the name of a queue implementation ("memory", "fs").
type Vendor string

// Queue represents an abstract message queue for any payload type.
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue.
	Publish(ctx context.Context, t *T) error

	// TryPublish attempts a non-blocking publish. It reports false when the
	// queue cannot accept the message right now; callers decide whether the
	// payload may be dropped (metrics samples) or must be retried (state
	// transitions).
	TryPublish(ctx context.Context, t *T) (bool, error)

	// Consume retrieves a single message from the queue.
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue.
type Message[T any] interface {
	// T returns the payload of this message.
	T() *T

	// Ack acknowledges successful processing of this message.
	Ack() error

	// Nack indicates failure in processing this message.
	Nack(err error) error
}
