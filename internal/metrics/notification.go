package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event outcomes recorded by the consumer.
const (
	OutcomeProcessed    = "processed"
	OutcomeFailed       = "failed"
	OutcomeDuplicate    = "duplicate"
	OutcomeDecodeError  = "decode_error"
	OutcomeDeadLettered = "dead_lettered"
)

// NotificationMetrics records what happens to every inbound event.
type NotificationMetrics interface {
	// RecordEvent counts an event by type and outcome.
	RecordEvent(ctx context.Context, eventType, outcome string)

	// RecordDuration records how long the pipeline took for one message, in seconds.
	RecordDuration(ctx context.Context, eventType string, duration time.Duration, outcome string)

	// RecordDispatch counts a dispatcher invocation and its latency.
	// Status values: "success", "error", "unknown_type"
	RecordDispatch(ctx context.Context, eventType, status string, duration time.Duration)

	// AddInFlight moves the gauge of messages currently being processed.
	AddInFlight(ctx context.Context, delta int64)
}

type notificationMetrics struct {
	eventCounter    metric.Int64Counter
	durationHisto   metric.Float64Histogram
	dispatchCounter metric.Int64Counter
	dispatchHisto   metric.Float64Histogram
	inFlightUpDown  metric.Int64UpDownCounter
}

// NewNotificationMetrics creates a NotificationMetrics implementation using the provided meter provider.
// The namespace parameter is used as a prefix for all metric names (e.g., "notifier").
func NewNotificationMetrics(meterProvider metric.MeterProvider, namespace string) (NotificationMetrics, error) {
	meter := meterProvider.Meter(namespace)

	eventCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_events_total", namespace),
		metric.WithDescription("Total number of consumed task events by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_event_processing_duration_seconds", namespace),
		metric.WithDescription("Duration of the per-message pipeline in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	dispatchCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_dispatch_total", namespace),
		metric.WithDescription("Total number of handler dispatches"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch counter: %w", err)
	}

	dispatchHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_dispatch_duration_seconds", namespace),
		metric.WithDescription("Duration of handler dispatches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch histogram: %w", err)
	}

	inFlight, err := meter.Int64UpDownCounter(
		fmt.Sprintf("%s_events_in_flight", namespace),
		metric.WithDescription("Number of messages currently being processed"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-flight gauge: %w", err)
	}

	return &notificationMetrics{
		eventCounter:    eventCounter,
		durationHisto:   durationHisto,
		dispatchCounter: dispatchCounter,
		dispatchHisto:   dispatchHisto,
		inFlightUpDown:  inFlight,
	}, nil
}

func (n *notificationMetrics) RecordEvent(ctx context.Context, eventType, outcome string) {
	n.eventCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("event_type", eventType),
			attribute.String("outcome", outcome),
		),
	)
}

func (n *notificationMetrics) RecordDuration(
	ctx context.Context,
	eventType string,
	duration time.Duration,
	outcome string,
) {
	n.durationHisto.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("event_type", eventType),
			attribute.String("outcome", outcome),
		),
	)
}

func (n *notificationMetrics) RecordDispatch(
	ctx context.Context,
	eventType, status string,
	duration time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("status", status),
	)
	n.dispatchCounter.Add(ctx, 1, attrs)
	n.dispatchHisto.Record(ctx, duration.Seconds(), attrs)
}

func (n *notificationMetrics) AddInFlight(ctx context.Context, delta int64) {
	n.inFlightUpDown.Add(ctx, delta)
}

// NoOpNotificationMetrics is used when metrics are disabled.
type NoOpNotificationMetrics struct{}

// NewNoOpNotificationMetrics creates a no-op NotificationMetrics implementation.
func NewNoOpNotificationMetrics() NotificationMetrics {
	return &NoOpNotificationMetrics{}
}

// RecordEvent does nothing when metrics are disabled.
func (n *NoOpNotificationMetrics) RecordEvent(ctx context.Context, eventType, outcome string) {}

// RecordDuration does nothing when metrics are disabled.
func (n *NoOpNotificationMetrics) RecordDuration(
	ctx context.Context,
	eventType string,
	duration time.Duration,
	outcome string,
) {
}

// RecordDispatch does nothing when metrics are disabled.
func (n *NoOpNotificationMetrics) RecordDispatch(
	ctx context.Context,
	eventType, status string,
	duration time.Duration,
) {
}

// AddInFlight does nothing when metrics are disabled.
func (n *NoOpNotificationMetrics) AddInFlight(ctx context.Context, delta int64) {}
