// Package domain defines the task event record and the notification status model.
package domain

import (
	"encoding/json"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/notifier/internal/errors"
)

// EventType identifies a task lifecycle change. It doubles as the broker routing key.
type EventType string

const (
	EventTypeTaskCreated       EventType = "task.created"
	EventTypeTaskUpdated       EventType = "task.updated"
	EventTypeTaskDeleted       EventType = "task.deleted"
	EventTypeTaskStatusChanged EventType = "task.status_changed"
)

// EventTypes lists the closed set of event types known to this build.
var EventTypes = []EventType{
	EventTypeTaskCreated,
	EventTypeTaskUpdated,
	EventTypeTaskDeleted,
	EventTypeTaskStatusChanged,
}

// Known reports whether the event type belongs to the closed enumeration.
// Newer producers may emit types this build does not know about.
func (t EventType) Known() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEventType accepts both the routing form ("task.created") and the short form ("created").
func ParseEventType(s string) (EventType, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "task.") {
		s = "task." + s
	}
	t := EventType(s)
	if !t.Known() {
		return "", apperrors.Wrapf(apperrors.ErrUnknownEventType, "event type %q", s)
	}
	return t, nil
}

// Event is a task lifecycle event as carried on the broker.
// It is passed by value and its payload is only reachable through copying accessors.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	TaskID    uuid.UUID
	UserID    uuid.UUID
	Timestamp time.Time
	data      map[string]any
}

// NewEvent builds an event with a fresh identifier and the current UTC time.
func NewEvent(eventType EventType, taskID, userID uuid.UUID, data map[string]any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    taskID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		data:      maps.Clone(data),
	}
}

// Data returns a copy of the event payload. It is never nil.
func (e Event) Data() map[string]any {
	if e.data == nil {
		return map[string]any{}
	}
	return maps.Clone(e.data)
}

// DataString returns the payload value under key when it is a string, otherwise def.
func (e Event) DataString(key, def string) string {
	v, ok := e.data[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// eventPayload is the wire representation of an Event.
type eventPayload struct {
	EventID   uuid.UUID      `json:"event_id"`
	EventType EventType      `json:"event_type"`
	TaskID    uuid.UUID      `json:"task_id"`
	UserID    uuid.UUID      `json:"user_id"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Validate checks that the identifiers and the event type are present.
func (p *eventPayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.EventID, requiredUUID),
		validation.Field(&p.EventType, validation.Required),
		validation.Field(&p.TaskID, requiredUUID),
		validation.Field(&p.UserID, requiredUUID),
	)
}

// requiredUUID rejects the nil UUID, which validation.Required accepts because
// uuid.UUID is a fixed-size array.
var requiredUUID = validation.By(func(value interface{}) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return validation.NewError("validation_required", "cannot be blank")
	}
	return nil
})

// naive timestamps carry no zone and are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// DecodeEvent parses and validates a broker message body.
// Unknown event types decode successfully; routing them is the dispatcher's concern.
func DecodeEvent(body []byte) (Event, error) {
	var p eventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, apperrors.Wrapf(apperrors.ErrInvalidInput, "decode event: %v", err)
	}
	if err := p.Validate(); err != nil {
		return Event{}, apperrors.Wrapf(apperrors.ErrInvalidInput, "validate event %s: %v", p.EventID, err)
	}

	var ts time.Time
	if p.Timestamp != "" {
		parsed, err := parseTimestamp(p.Timestamp)
		if err != nil {
			return Event{}, apperrors.Wrapf(apperrors.ErrInvalidInput, "event %s timestamp", p.EventID)
		}
		ts = parsed
	}

	return Event{
		ID:        p.EventID,
		Type:      p.EventType,
		TaskID:    p.TaskID,
		UserID:    p.UserID,
		Timestamp: ts,
		data:      p.Data,
	}, nil
}

// Encode returns the JSON wire representation of the event.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(eventPayload{
		EventID:   e.ID,
		EventType: e.Type,
		TaskID:    e.TaskID,
		UserID:    e.UserID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Data:      e.Data(),
	})
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
