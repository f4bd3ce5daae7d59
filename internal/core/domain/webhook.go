package domain

// Notification event types.
const (
	NotificationRefillSucceeded = "REFILL_SUCCEEDED"
	NotificationRefillFailed    = "REFILL_FAILED"
)

// RefillNotification is the JSON document pushed to notification channels.
type RefillNotification struct {
	EventType string      `json:"event_type"`
	Event     RefillEvent `json:"event"`
	Signature string      `json:"signature,omitempty"`
}

// NewRefillNotification wraps ev with the matching event type.
func NewRefillNotification(ev RefillEvent) RefillNotification {
	eventType := NotificationRefillSucceeded
	if !ev.Success {
		eventType = NotificationRefillFailed
	}
	return RefillNotification{EventType: eventType, Event: ev}
}
