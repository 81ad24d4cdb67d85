package usecase

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/allisson/notifier/internal/errors"
	"github.com/allisson/notifier/internal/notification/domain"
)

// EventDispatcher routes events to handlers by type. Types without a handler are
// logged and dropped so that newer producers do not poison the queue.
type EventDispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.EventType]Handler
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewEventDispatcher creates a dispatcher with the given handlers.
// A nil limiter disables rate limiting.
func NewEventDispatcher(
	handlers map[domain.EventType]Handler,
	limiter *rate.Limiter,
	logger *slog.Logger,
) *EventDispatcher {
	d := &EventDispatcher{
		handlers: make(map[domain.EventType]Handler, len(handlers)),
		limiter:  limiter,
		logger:   logger.With("component", "dispatcher"),
	}
	for eventType, handler := range handlers {
		d.handlers[eventType] = handler
	}
	return d
}

// NewRateLimiter returns a limiter allowing perSecond dispatches, or nil when perSecond is not positive.
func NewRateLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(math.Ceil(perSecond))
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Register sets the handler for an event type, replacing any existing one.
func (d *EventDispatcher) Register(eventType domain.EventType, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = handler
}

// Dispatch invokes the handler registered for the event type and returns its error.
func (d *EventDispatcher) Dispatch(ctx context.Context, event domain.Event) error {
	d.mu.RLock()
	handler, ok := d.handlers[event.Type]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("no handler for event type",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", string(event.Type)),
		)
		return nil
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return apperrors.Wrapf(err, "dispatch rate limit for event %s", event.ID)
		}
	}

	d.logger.Debug("dispatching event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
	)
	return handler(ctx, event)
}
