package domain

import "github.com/google/uuid"

// Notification is the message a handler would deliver to a user.
type Notification struct {
	EventID   uuid.UUID
	EventType EventType
	TaskID    uuid.UUID
	UserID    uuid.UUID
	Message   string
}
