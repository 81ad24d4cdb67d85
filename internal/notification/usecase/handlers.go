package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/notifier/internal/notification/domain"
)

// NotificationHandlers builds the user-facing notification for each task event type.
type NotificationHandlers struct {
	notifier Notifier
}

// NewNotificationHandlers creates handlers that hand their notifications to notifier.
func NewNotificationHandlers(notifier Notifier) *NotificationHandlers {
	return &NotificationHandlers{notifier: notifier}
}

// Map returns one handler per known event type.
func (h *NotificationHandlers) Map() map[domain.EventType]Handler {
	return map[domain.EventType]Handler{
		domain.EventTypeTaskCreated:       h.TaskCreated,
		domain.EventTypeTaskUpdated:       h.TaskUpdated,
		domain.EventTypeTaskStatusChanged: h.TaskStatusChanged,
		domain.EventTypeTaskDeleted:       h.TaskDeleted,
	}
}

func (h *NotificationHandlers) TaskCreated(ctx context.Context, event domain.Event) error {
	return h.notify(ctx, event, fmt.Sprintf("New task '%s' created", title(event)))
}

func (h *NotificationHandlers) TaskUpdated(ctx context.Context, event domain.Event) error {
	return h.notify(ctx, event, fmt.Sprintf("Task '%s' updated", title(event)))
}

func (h *NotificationHandlers) TaskStatusChanged(ctx context.Context, event domain.Event) error {
	return h.notify(ctx, event, fmt.Sprintf(
		"Task '%s' status changed from %s to %s",
		title(event),
		event.DataString("old_status", "unknown"),
		event.DataString("new_status", "unknown"),
	))
}

func (h *NotificationHandlers) TaskDeleted(ctx context.Context, event domain.Event) error {
	return h.notify(ctx, event, fmt.Sprintf("Task '%s' deleted", title(event)))
}

func (h *NotificationHandlers) notify(ctx context.Context, event domain.Event, message string) error {
	return h.notifier.Notify(ctx, domain.Notification{
		EventID:   event.ID,
		EventType: event.Type,
		TaskID:    event.TaskID,
		UserID:    event.UserID,
		Message:   message,
	})
}

func title(event domain.Event) string {
	return event.DataString("title", "N/A")
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Notify logs the notification. It never fails.
func (n *LogNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	n.logger.InfoContext(ctx, "sending notification",
		slog.String("event_id", notification.EventID.String()),
		slog.String("event_type", string(notification.EventType)),
		slog.String("task_id", notification.TaskID.String()),
		slog.String("user_id", notification.UserID.String()),
		slog.String("message", notification.Message),
	)
	return nil
}
