package usecase

import (
	"context"
	"time"

	"github.com/allisson/notifier/internal/metrics"
	"github.com/allisson/notifier/internal/notification/domain"
)

// dispatcherWithMetrics decorates Dispatcher with metrics instrumentation.
type dispatcherWithMetrics struct {
	next    Dispatcher
	metrics metrics.NotificationMetrics
}

// NewDispatcherWithMetrics wraps a Dispatcher with metrics recording.
func NewDispatcherWithMetrics(dispatcher Dispatcher, m metrics.NotificationMetrics) Dispatcher {
	return &dispatcherWithMetrics{
		next:    dispatcher,
		metrics: m,
	}
}

// Dispatch records the dispatch status and latency per event type.
func (d *dispatcherWithMetrics) Dispatch(ctx context.Context, event domain.Event) error {
	start := time.Now()
	err := d.next.Dispatch(ctx, event)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case !event.Type.Known():
		status = "unknown_type"
	}

	d.metrics.RecordDispatch(ctx, string(event.Type), status, time.Since(start))

	return err
}
