package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/notifier/internal/metrics"
	"github.com/allisson/notifier/internal/notification/domain"
	"github.com/allisson/notifier/internal/notification/usecase/mocks"
)

// mockNotificationMetrics is a mock implementation of metrics.NotificationMetrics for testing.
type mockNotificationMetrics struct {
	mock.Mock
}

func (m *mockNotificationMetrics) RecordEvent(ctx context.Context, eventType, outcome string) {
	m.Called(ctx, eventType, outcome)
}

func (m *mockNotificationMetrics) RecordDuration(
	ctx context.Context,
	eventType string,
	duration time.Duration,
	outcome string,
) {
	m.Called(ctx, eventType, duration, outcome)
}

func (m *mockNotificationMetrics) RecordDispatch(
	ctx context.Context,
	eventType, status string,
	duration time.Duration,
) {
	m.Called(ctx, eventType, status, duration)
}

func (m *mockNotificationMetrics) AddInFlight(ctx context.Context, delta int64) {
	m.Called(ctx, delta)
}

var _ metrics.NotificationMetrics = (*mockNotificationMetrics)(nil)

func TestNewDispatcherWithMetrics(t *testing.T) {
	decorator := NewDispatcherWithMetrics(&mocks.MockDispatcher{}, &mockNotificationMetrics{})

	assert.NotNil(t, decorator)
	assert.Implements(t, (*Dispatcher)(nil), decorator)
}

func TestDispatcherWithMetrics_Dispatch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		eventType domain.EventType
		err       error
		status    string
	}{
		{name: "Success_RecordsSuccess", eventType: domain.EventTypeTaskCreated, status: "success"},
		{
			name:      "Error_RecordsError",
			eventType: domain.EventTypeTaskDeleted,
			err:       errors.New("handler failed"),
			status:    "error",
		},
		{name: "Success_RecordsUnknownType", eventType: domain.EventType("task.archived"), status: "unknown_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := newTestEvent(tt.eventType, nil)
			dispatcher := &mocks.MockDispatcher{}
			dispatcher.On("Dispatch", ctx, event).Return(tt.err).Once()
			m := &mockNotificationMetrics{}
			m.On("RecordDispatch", ctx, string(tt.eventType), tt.status, mock.AnythingOfType("time.Duration")).
				Return().
				Once()

			err := NewDispatcherWithMetrics(dispatcher, m).Dispatch(ctx, event)

			assert.Equal(t, tt.err, err)
			dispatcher.AssertExpectations(t)
			m.AssertExpectations(t)
		})
	}
}
