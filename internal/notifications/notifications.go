package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/outbox"
)

// Payload is the notification data stored in the outbox row. Everything the
// flusher needs to render and address the email lives here, so delivery never
// re-reads the order.
type Payload struct {
	Recipient   string `json:"recipient"`
	OrderID     string `json:"order_id"`
	AmountPaise int64  `json:"amount_paise,omitempty"`
	RefundPaise int64  `json:"refund_paise,omitempty"`
	AWB         string `json:"awb,omitempty"`
	CreditNote  string `json:"credit_note,omitempty"`
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Queue stages notification events inside the caller's transaction. Actual
// delivery happens post-commit via the Flusher; a failed send never rolls the
// business transaction back.
type Queue struct {
	emitter outboxEmitter
}

// NewQueue builds the notification queue on top of the outbox service.
func NewQueue(emitter outboxEmitter) *Queue {
	return &Queue{emitter: emitter}
}

// Enqueue stores one notification event for the order. Re-enqueueing the same
// event type for the same order (replayed webhooks) is a no-op.
func (q *Queue) Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.NotificationEventType, orderID uuid.UUID, payload Payload) error {
	if payload.Recipient == "" {
		// guest orders without an email simply get no notification
		return nil
	}
	payload.OrderID = orderID.String()
	return q.emitter.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.NotificationEvent(eventType),
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          payload,
		Version:       1,
	})
}

// Render produces the subject and HTML body for one notification event.
func Render(eventType enums.NotificationEventType, payload Payload) (subject, body string) {
	rupees := func(paise int64) string {
		return fmt.Sprintf("₹%d.%02d", paise/100, paise%100)
	}
	switch eventType {
	case enums.NotificationOrderConfirmed:
		return "Your order is confirmed",
			fmt.Sprintf("<p>Thanks for shopping with us! Order <b>%s</b> for %s is confirmed and will ship soon.</p>",
				payload.OrderID, rupees(payload.AmountPaise))
	case enums.NotificationOrderShipped:
		return "Your order is on its way",
			fmt.Sprintf("<p>Order <b>%s</b> has been picked up. Track it with AWB <b>%s</b>.</p>",
				payload.OrderID, payload.AWB)
	case enums.NotificationOrderDelivered:
		return "Your order has been delivered",
			fmt.Sprintf("<p>Order <b>%s</b> was delivered. We hope you enjoy it!</p>", payload.OrderID)
	case enums.NotificationOrderCancelled:
		return "Your order has been cancelled",
			fmt.Sprintf("<p>Order <b>%s</b> is cancelled. Your refund of %s is on its way.</p>",
				payload.OrderID, rupees(payload.RefundPaise))
	case enums.NotificationRefundCompleted:
		return "Your refund is complete",
			fmt.Sprintf("<p>Your refund of %s for order <b>%s</b> has been processed.</p>",
				rupees(payload.RefundPaise), payload.OrderID)
	case enums.NotificationReturnRequested:
		return "Return request received",
			fmt.Sprintf("<p>We received your return request for order <b>%s</b>. A pickup will be scheduled shortly.</p>",
				payload.OrderID)
	case enums.NotificationReturnRefundCompleted:
		return "Your return refund is complete",
			fmt.Sprintf("<p>Your return for order <b>%s</b> is settled. Refund: %s. Credit note: %s.</p>",
				payload.OrderID, rupees(payload.RefundPaise), payload.CreditNote)
	}
	return "Order update", fmt.Sprintf("<p>There is an update on order <b>%s</b>.</p>", payload.OrderID)
}

// DecodePayload extracts the notification payload from a stored outbox row.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Payload{}, err
	}
	var payload Payload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return Payload{}, err
	}
	return payload, nil
}
