package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/notifier/internal/app"
	"github.com/allisson/notifier/internal/config"
	"github.com/allisson/notifier/internal/notification/domain"
	"github.com/allisson/notifier/internal/notification/usecase"
)

// PublishInput describes the task event to publish.
type PublishInput struct {
	EventType string
	TaskID    string
	UserID    string
	Title     string
	Status    string
	OldStatus string
}

// RunPublish publishes a single task event to the exchange. Missing task and user ids are generated.
// Intended for manual testing of a running consumer.
func RunPublish(ctx context.Context, input PublishInput, streams IOTuple) error {
	// Load configuration
	cfg := config.Load()

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	return publishEvent(ctx, container.BrokerClient(), input, logger, streams.Writer)
}

func publishEvent(
	ctx context.Context,
	publisher usecase.Publisher,
	input PublishInput,
	logger *slog.Logger,
	w io.Writer,
) error {
	event, err := buildEvent(input)
	if err != nil {
		return err
	}

	if err := publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	logger.Info("event published",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("task_id", event.TaskID.String()),
	)
	_, _ = fmt.Fprintf(w, "Published %s event %s for task %s\n", event.Type, event.ID, event.TaskID)
	return nil
}

func buildEvent(input PublishInput) (domain.Event, error) {
	eventType, err := domain.ParseEventType(input.EventType)
	if err != nil {
		return domain.Event{}, fmt.Errorf("invalid event type: %w", err)
	}

	taskID, err := parseOrNewUUID(input.TaskID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("invalid task id: %w", err)
	}
	userID, err := parseOrNewUUID(input.UserID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("invalid user id: %w", err)
	}

	task := domain.TaskSnapshot{
		ID:      taskID,
		OwnerID: userID,
		Title:   input.Title,
		Status:  domain.TaskStatus(input.Status),
	}
	oldStatus := domain.TaskStatus(input.OldStatus)

	switch eventType {
	case domain.EventTypeTaskCreated:
		return domain.NewTaskCreatedEvent(task), nil
	case domain.EventTypeTaskUpdated:
		if oldStatus == "" {
			return domain.NewTaskUpdatedEvent(task), nil
		}
		before := task
		before.Status = oldStatus
		return domain.EventForUpdate(domain.NewTaskUpdateResult(before, task)), nil
	case domain.EventTypeTaskStatusChanged:
		return domain.NewTaskStatusChangedEvent(task, oldStatus), nil
	default:
		return domain.NewTaskDeletedEvent(task), nil
	}
}

func parseOrNewUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}
