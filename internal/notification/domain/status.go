package domain

import "time"

// NotificationStatus is the processing state recorded for an event id in the status store.
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusProcessed NotificationStatus = "processed"
	NotificationStatusFailed    NotificationStatus = "failed"
)

// DefaultStatusTTL is how long a status record is retained before the event is treated as new.
const DefaultStatusTTL = 7 * 24 * time.Hour

// ParseNotificationStatus maps a stored value to a status. Unrecognized values report false.
func ParseNotificationStatus(s string) (NotificationStatus, bool) {
	switch NotificationStatus(s) {
	case NotificationStatusPending, NotificationStatusProcessed, NotificationStatusFailed:
		return NotificationStatus(s), true
	default:
		return "", false
	}
}
