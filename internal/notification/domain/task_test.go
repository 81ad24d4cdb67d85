package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewTaskUpdateResult(t *testing.T) {
	before := TaskSnapshot{ID: uuid.New(), OwnerID: uuid.New(), Title: "Buy milk", Status: TaskStatusPending}

	t.Run("StatusChanged", func(t *testing.T) {
		after := before
		after.Status = TaskStatusCompleted

		result := NewTaskUpdateResult(before, after)

		assert.Equal(t, after, result.Task)
		assert.Equal(t, StatusTransition{Old: TaskStatusPending, New: TaskStatusCompleted, Changed: true}, result.Transition)
	})

	t.Run("StatusKept", func(t *testing.T) {
		after := before
		after.Title = "Buy oat milk"

		result := NewTaskUpdateResult(before, after)

		assert.False(t, result.Transition.Changed)
	})
}

func TestEventForUpdate(t *testing.T) {
	before := TaskSnapshot{ID: uuid.New(), OwnerID: uuid.New(), Title: "Buy milk", Status: TaskStatusPending}

	t.Run("StatusChangedEvent", func(t *testing.T) {
		after := before
		after.Status = TaskStatusInProgress

		event := EventForUpdate(NewTaskUpdateResult(before, after))

		assert.Equal(t, EventTypeTaskStatusChanged, event.Type)
		assert.Equal(t, before.ID, event.TaskID)
		assert.Equal(t, before.OwnerID, event.UserID)
		assert.Equal(t, "pending", event.DataString("old_status", ""))
		assert.Equal(t, "in_progress", event.DataString("new_status", ""))
	})

	t.Run("UpdatedEvent", func(t *testing.T) {
		event := EventForUpdate(NewTaskUpdateResult(before, before))

		assert.Equal(t, EventTypeTaskUpdated, event.Type)
		assert.Equal(t, "pending", event.DataString("status", ""))
	})
}

func TestTaskEventConstructors(t *testing.T) {
	task := TaskSnapshot{ID: uuid.New(), OwnerID: uuid.New(), Title: "Buy milk", Status: TaskStatusPending}

	created := NewTaskCreatedEvent(task)
	deleted := NewTaskDeletedEvent(task)

	assert.Equal(t, EventTypeTaskCreated, created.Type)
	assert.Equal(t, EventTypeTaskDeleted, deleted.Type)
	assert.NotEqual(t, created.ID, deleted.ID)
	assert.Equal(t, map[string]any{"title": "Buy milk"}, deleted.Data())
}
