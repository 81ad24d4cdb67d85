package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/notifier/internal/notification/domain"
	"github.com/allisson/notifier/internal/notification/usecase/mocks"
)

func expectedNotification(event domain.Event, message string) domain.Notification {
	return domain.Notification{
		EventID:   event.ID,
		EventType: event.Type,
		TaskID:    event.TaskID,
		UserID:    event.UserID,
		Message:   message,
	}
}

func TestNotificationHandlers(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		event   domain.Event
		message string
	}{
		{
			name:    "Success_TaskCreated",
			event:   newTestEvent(domain.EventTypeTaskCreated, map[string]any{"title": "Buy milk"}),
			message: "New task 'Buy milk' created",
		},
		{
			name:    "Success_TaskUpdated",
			event:   newTestEvent(domain.EventTypeTaskUpdated, map[string]any{"title": "Buy oat milk"}),
			message: "Task 'Buy oat milk' updated",
		},
		{
			name: "Success_TaskStatusChanged",
			event: newTestEvent(domain.EventTypeTaskStatusChanged, map[string]any{
				"title":      "Buy milk",
				"old_status": "pending",
				"new_status": "completed",
			}),
			message: "Task 'Buy milk' status changed from pending to completed",
		},
		{
			name:    "Success_TaskStatusChangedDefaults",
			event:   newTestEvent(domain.EventTypeTaskStatusChanged, nil),
			message: "Task 'N/A' status changed from unknown to unknown",
		},
		{
			name:    "Success_TaskDeletedWithoutTitle",
			event:   newTestEvent(domain.EventTypeTaskDeleted, map[string]any{"title": 42}),
			message: "Task 'N/A' deleted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &mocks.MockNotifier{}
			notifier.On("Notify", ctx, expectedNotification(tt.event, tt.message)).Return(nil).Once()
			handlers := NewNotificationHandlers(notifier)

			err := handlers.Map()[tt.event.Type](ctx, tt.event)

			require.NoError(t, err)
			notifier.AssertExpectations(t)
		})
	}

	t.Run("Error_NotifierFailurePropagates", func(t *testing.T) {
		notifyErr := errors.New("push gateway down")
		notifier := &mocks.MockNotifier{}
		notifier.On("Notify", ctx, mock.Anything).Return(notifyErr).Once()
		handlers := NewNotificationHandlers(notifier)

		err := handlers.TaskCreated(ctx, newTestEvent(domain.EventTypeTaskCreated, nil))

		assert.ErrorIs(t, err, notifyErr)
	})

	t.Run("Success_MapCoversKnownTypes", func(t *testing.T) {
		handlers := NewNotificationHandlers(&mocks.MockNotifier{}).Map()

		assert.Len(t, handlers, len(domain.EventTypes))
		for _, eventType := range domain.EventTypes {
			assert.Contains(t, handlers, eventType)
		}
	})
}

func TestLogNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	event := newTestEvent(domain.EventTypeTaskCreated, nil)

	err := notifier.Notify(context.Background(), expectedNotification(event, "New task 'Buy milk' created"))

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"sending notification"`)
	assert.Contains(t, buf.String(), `"message":"New task 'Buy milk' created"`)
	assert.Contains(t, buf.String(), event.UserID.String())
}
