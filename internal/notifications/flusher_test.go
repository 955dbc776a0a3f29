package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/mailer"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/outbox"
)

type stubStore struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (s *stubStore) FetchUnpublished(limit int) ([]models.OutboxEvent, error) {
	return s.events, nil
}

func (s *stubStore) MarkPublished(id uuid.UUID) error {
	s.published = append(s.published, id)
	return nil
}

func (s *stubStore) MarkFailed(id uuid.UUID, err error) error {
	s.failed = append(s.failed, id)
	return nil
}

type stubSender struct {
	sent     []mailer.Message
	failures int
}

func (s *stubSender) Send(ctx context.Context, msg mailer.Message) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("relay unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func notificationEvent(t *testing.T, eventType enums.NotificationEventType, payload Payload) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.NotificationEvent(eventType),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	}
}

func TestFlushSendsAndMarksPublished(t *testing.T) {
	store := &stubStore{}
	store.events = []models.OutboxEvent{
		notificationEvent(t, enums.NotificationOrderConfirmed, Payload{
			Recipient:   "asha@example.com",
			OrderID:     uuid.NewString(),
			AmountPaise: 50000,
		}),
	}
	send := &stubSender{}
	f := NewFlusher(store, send, nil, 10, 3, time.Millisecond)

	f.Flush(context.Background())

	if len(send.sent) != 1 {
		t.Fatalf("expected one email sent, got %d", len(send.sent))
	}
	if send.sent[0].Subject != "Your order is confirmed" {
		t.Fatalf("unexpected subject %q", send.sent[0].Subject)
	}
	if len(store.published) != 1 {
		t.Fatalf("expected event marked published")
	}
	if len(store.failed) != 0 {
		t.Fatalf("expected no failures")
	}
}

func TestFlushRetriesTransientSendFailure(t *testing.T) {
	store := &stubStore{}
	store.events = []models.OutboxEvent{
		notificationEvent(t, enums.NotificationOrderDelivered, Payload{
			Recipient: "asha@example.com",
			OrderID:   uuid.NewString(),
		}),
	}
	send := &stubSender{failures: 2}
	f := NewFlusher(store, send, nil, 10, 5, time.Millisecond)

	f.Flush(context.Background())

	if len(send.sent) != 1 {
		t.Fatalf("expected send to succeed after retries, sent=%d", len(send.sent))
	}
	if len(store.published) != 1 {
		t.Fatalf("expected event marked published after retry")
	}
}

func TestFlushMarksFailedAfterExhaustedRetries(t *testing.T) {
	store := &stubStore{}
	store.events = []models.OutboxEvent{
		notificationEvent(t, enums.NotificationOrderCancelled, Payload{
			Recipient:   "asha@example.com",
			OrderID:     uuid.NewString(),
			RefundPaise: 50000,
		}),
	}
	send := &stubSender{failures: 100}
	f := NewFlusher(store, send, nil, 10, 2, time.Millisecond)

	f.Flush(context.Background())

	if len(send.sent) != 0 {
		t.Fatalf("expected no successful send")
	}
	if len(store.failed) != 1 {
		t.Fatalf("expected event marked failed")
	}
	if len(store.published) != 0 {
		t.Fatalf("failed event must not be marked published")
	}
}

func TestFlushSkipsNonNotificationEvents(t *testing.T) {
	store := &stubStore{
		events: []models.OutboxEvent{{
			ID:            uuid.New(),
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
		}},
	}
	send := &stubSender{}
	f := NewFlusher(store, send, nil, 10, 3, time.Millisecond)

	f.Flush(context.Background())

	if len(send.sent) != 0 || len(store.published) != 0 || len(store.failed) != 0 {
		t.Fatalf("non-notification events must be left untouched")
	}
}

func TestRenderReturnRefundCompleted(t *testing.T) {
	subject, body := Render(enums.NotificationReturnRefundCompleted, Payload{
		OrderID:     "ord-1",
		RefundPaise: 42050,
		CreditNote:  "CN-2026-000041",
	})
	if subject != "Your return refund is complete" {
		t.Fatalf("unexpected subject %q", subject)
	}
	for _, want := range []string{"₹420.50", "CN-2026-000041", "ord-1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q: %s", want, body)
		}
	}
}
