package domain

import "github.com/google/uuid"

// TaskStatus is the workflow state of a task on the producer side.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskSnapshot is the subset of a task that events describe.
type TaskSnapshot struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Title   string
	Status  TaskStatus
}

// StatusTransition describes how an update moved a task between statuses.
type StatusTransition struct {
	Old     TaskStatus
	New     TaskStatus
	Changed bool
}

// TaskUpdateResult is returned by a task update: the updated task and its status transition.
type TaskUpdateResult struct {
	Task       TaskSnapshot
	Transition StatusTransition
}

// NewTaskUpdateResult compares the task before and after an update.
func NewTaskUpdateResult(before, after TaskSnapshot) TaskUpdateResult {
	return TaskUpdateResult{
		Task: after,
		Transition: StatusTransition{
			Old:     before.Status,
			New:     after.Status,
			Changed: before.Status != after.Status,
		},
	}
}

// NewTaskCreatedEvent builds the event announcing a new task.
func NewTaskCreatedEvent(task TaskSnapshot) Event {
	return NewEvent(EventTypeTaskCreated, task.ID, task.OwnerID, map[string]any{
		"title":  task.Title,
		"status": string(task.Status),
	})
}

// NewTaskUpdatedEvent builds the event announcing an update that kept the status.
func NewTaskUpdatedEvent(task TaskSnapshot) Event {
	return NewEvent(EventTypeTaskUpdated, task.ID, task.OwnerID, map[string]any{
		"title":  task.Title,
		"status": string(task.Status),
	})
}

// NewTaskStatusChangedEvent builds the event announcing a status transition.
func NewTaskStatusChangedEvent(task TaskSnapshot, oldStatus TaskStatus) Event {
	return NewEvent(EventTypeTaskStatusChanged, task.ID, task.OwnerID, map[string]any{
		"title":      task.Title,
		"old_status": string(oldStatus),
		"new_status": string(task.Status),
	})
}

// NewTaskDeletedEvent builds the event announcing a removed task.
func NewTaskDeletedEvent(task TaskSnapshot) Event {
	return NewEvent(EventTypeTaskDeleted, task.ID, task.OwnerID, map[string]any{
		"title": task.Title,
	})
}

// EventForUpdate picks the event describing an update: a status change wins over a plain update.
func EventForUpdate(result TaskUpdateResult) Event {
	if result.Transition.Changed {
		return NewTaskStatusChangedEvent(result.Task, result.Transition.Old)
	}
	return NewTaskUpdatedEvent(result.Task)
}
