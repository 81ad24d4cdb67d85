package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine checks that the Prometheus output contains a sample of name carrying
// the given labels (in exporter order, other labels allowed in between) and value.
func assertMetricLine(t *testing.T, output, name, value string, labels ...string) {
	t.Helper()
	pattern := name + `\{`
	for _, l := range labels {
		pattern += `[^}]*` + l
	}
	pattern += `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	provider.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewNotificationMetrics(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	nm, err := NewNotificationMetrics(provider.MeterProvider(), "test_app")

	require.NoError(t, err)
	assert.NotNil(t, nm)
}

func TestNotificationMetrics_Integration(t *testing.T) {
	provider, err := NewProvider("integration_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	nm, err := NewNotificationMetrics(provider.MeterProvider(), "integration_test")
	require.NoError(t, err)

	ctx := context.Background()

	nm.RecordEvent(ctx, "task.created", OutcomeProcessed)
	nm.RecordEvent(ctx, "task.created", OutcomeProcessed)
	nm.RecordEvent(ctx, "task.created", OutcomeDuplicate)
	nm.RecordEvent(ctx, "task.deleted", OutcomeFailed)
	nm.RecordDuration(ctx, "task.created", 15*time.Millisecond, OutcomeProcessed)
	nm.RecordDispatch(ctx, "task.updated", "success", 5*time.Millisecond)
	nm.AddInFlight(ctx, 3)
	nm.AddInFlight(ctx, -1)

	output := scrape(t, provider)

	assertMetricLine(t, output, "integration_test_events_total", "2",
		`event_type="task.created"`, `outcome="processed"`)
	assertMetricLine(t, output, "integration_test_events_total", "1",
		`event_type="task.created"`, `outcome="duplicate"`)
	assertMetricLine(t, output, "integration_test_events_total", "1",
		`event_type="task.deleted"`, `outcome="failed"`)
	assertMetricLine(t, output, "integration_test_dispatch_total", "1",
		`event_type="task.updated"`, `status="success"`)
	assertMetricLine(t, output, "integration_test_events_in_flight", "2")
	assert.Contains(t, output, "integration_test_event_processing_duration_seconds")
}

func TestNewNoOpNotificationMetrics(t *testing.T) {
	noOp := NewNoOpNotificationMetrics()

	assert.NotNil(t, noOp)
	assert.IsType(t, &NoOpNotificationMetrics{}, noOp)

	t.Run("NoOp_DoesNotPanic", func(t *testing.T) {
		ctx := context.Background()
		noOp.RecordEvent(ctx, "task.created", OutcomeProcessed)
		noOp.RecordDuration(ctx, "task.created", time.Millisecond, OutcomeProcessed)
		noOp.RecordDispatch(ctx, "task.created", "success", time.Millisecond)
		noOp.AddInFlight(ctx, 1)
	})
}
