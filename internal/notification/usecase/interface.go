// Package usecase implements the notification pipeline: the consumer that owns
// acknowledgement and status tracking, and the dispatcher that routes events to
// per-type handlers.
package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/allisson/notifier/internal/broker"
	"github.com/allisson/notifier/internal/notification/domain"
)

// StatusRepository tracks the processing status of events.
// Reads and writes are best effort: implementations log store errors instead of returning them.
type StatusRepository interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, eventID uuid.UUID) (domain.NotificationStatus, bool)
	Set(ctx context.Context, eventID uuid.UUID, status domain.NotificationStatus)
	// IncrAttempts returns the new delivery attempt count for key, or 0 when unknown.
	IncrAttempts(ctx context.Context, key string) int64
	Close() error
}

// Broker is the consumer side of the message broker.
type Broker interface {
	Connect(ctx context.Context) error
	DeclareTopology(ctx context.Context) (broker.Topology, error)
	Subscribe(ctx context.Context, prefetch int) (broker.Subscription, error)
	CloseChannel() error
	CloseConnection() error
}

// Publisher sends events to the broker.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Dispatcher routes an event to the handler registered for its type.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) error
}

// Handler performs the side effect for one event type. A returned error marks the event failed.
type Handler func(ctx context.Context, event domain.Event) error

// Notifier delivers a notification to its user.
type Notifier interface {
	Notify(ctx context.Context, notification domain.Notification) error
}
