// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to A2A events.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects published by the A2A service. All live under the "a2a." prefix
// captured by the AGENTRELAY stream.
const (
	SubjectTaskCreated        = "a2a.task.created"
	SubjectTaskUpdated        = "a2a.task.updated"
	SubjectMessageLogged      = "a2a.message.logged"
	SubjectInteractionLogged  = "a2a.interaction.logged"
	SubjectSessionUpserted    = "a2a.session.upserted"
	SubjectSessionDeactivated = "a2a.session.deactivated"
	SubjectCleanupCompleted   = "a2a.cleanup.completed"

	// SubjectAll matches every A2A event.
	SubjectAll = "a2a.>"
)

// Nop is a Queue that accepts and discards everything. It stands in when
// no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }

func (Nop) Subscribe(context.Context, string, Handler) (func(), error) {
	return func() {}, nil
}

func (Nop) Close() error      { return nil }
func (Nop) IsConnected() bool { return false }
