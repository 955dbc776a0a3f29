package enums

import "fmt"

// OutboxAggregateType names the row kind an outbox event hangs off.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateReturn     OutboxAggregateType = "return"
	AggregateCreditNote OutboxAggregateType = "credit_note"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateReturn,
	AggregateCreditNote,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names what happened. Notification events are derived
// per notification type so the outbox uniqueness index can deduplicate
// each email kind independently.
type OutboxEventType string

const (
	EventNotificationRequested OutboxEventType = "notification_requested"
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderConfirmed        OutboxEventType = "order_confirmed"
	EventOrderCancelled        OutboxEventType = "order_cancelled"
	EventOrderRefunded         OutboxEventType = "order_refunded"
	EventOrderReturned         OutboxEventType = "order_returned"
)

var validOutboxEventTypes = []OutboxEventType{
	EventNotificationRequested,
	EventOrderCreated,
	EventOrderConfirmed,
	EventOrderCancelled,
	EventOrderRefunded,
	EventOrderReturned,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// NotificationEvent derives the outbox event type for one notification kind.
func NotificationEvent(n NotificationEventType) OutboxEventType {
	return OutboxEventType("notification." + string(n))
}

// NotificationTypeFromEvent reverses NotificationEvent; ok is false for
// non-notification events.
func NotificationTypeFromEvent(e OutboxEventType) (NotificationEventType, bool) {
	const prefix = "notification."
	s := string(e)
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return NotificationEventType(s[len(prefix):]), true
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
