package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/inventory"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/lifecycle"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/notifications"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/returns"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type signatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.NotificationEventType, orderID uuid.UUID, payload notifications.Payload) error
}

type flusher interface {
	Flush(ctx context.Context)
}

// razorpayEnvelope is the subset of the gateway's webhook body we act on.
type razorpayEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Refund struct {
			Entity razorpayRefundEntity `json:"entity"`
		} `json:"refund"`
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

type razorpayRefundEntity struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	AmountPaise int64  `json:"amount"`
	Status      string `json:"status"`
}

type razorpayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Reason      string `json:"reason"`
		Description string `json:"description"`
	} `json:"error"`
}

// RazorpayProcessor applies gateway webhook deliveries to orders. Callers
// always answer the gateway with 200; any error returned here is logged, not
// surfaced, because the gateway retries on non-2xx and our dedup makes those
// retries indistinguishable from replays.
type RazorpayProcessor struct {
	repo     orders.Repository
	tx       txRunner
	events   *EventStore
	verifier signatureVerifier
	notify   notifier
	flush    flusher
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
}

// NewRazorpayProcessor builds the gateway webhook processor.
func NewRazorpayProcessor(repo orders.Repository, tx txRunner, events *EventStore, verifier signatureVerifier, notify notifier, flush flusher, m *metrics.WebhookMetrics, logg *logger.Logger) *RazorpayProcessor {
	return &RazorpayProcessor{
		repo:     repo,
		tx:       tx,
		events:   events,
		verifier: verifier,
		notify:   notify,
		flush:    flush,
		metrics:  m,
		logg:     logg,
	}
}

// Process handles one webhook delivery. The signature is checked and a
// failure is logged and counted, but processing continues: the payload is
// still correlated against our own records, and dropping refund confirmations
// over a key rotation hiccup strands orders in REFUND_INITIATED.
func (p *RazorpayProcessor) Process(ctx context.Context, eventID string, body []byte, signature string) error {
	started := time.Now()
	defer func() { p.metrics.ObserveDuration(ProviderRazorpay, time.Since(started)) }()

	var envelope razorpayEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook body")
	}
	p.metrics.IncReceived(ProviderRazorpay, envelope.Event)

	if !p.verifier.VerifyWebhookSignature(body, signature) {
		p.metrics.IncSignatureFailure(ProviderRazorpay)
		p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
			"event":    envelope.Event,
			"event_id": eventID,
		}), "razorpay webhook signature mismatch")
	}

	switch envelope.Event {
	case "refund.created", "refund.processed", "refund.failed":
		return p.processRefund(ctx, eventID, envelope, body)
	case "payment.failed":
		return p.processPaymentFailed(ctx, eventID, envelope, body)
	default:
		p.logg.Info(p.logg.WithFields(ctx, map[string]any{
			"event":    envelope.Event,
			"event_id": eventID,
		}), "ignoring unhandled razorpay event")
		return nil
	}
}

func (p *RazorpayProcessor) processRefund(ctx context.Context, eventID string, envelope razorpayEnvelope, body []byte) error {
	refund := envelope.Payload.Refund.Entity
	if refund.ID == "" && refund.PaymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund webhook carries no refund entity")
	}

	order, err := p.repo.FindByRefundOrPaymentID(ctx, refund.ID, refund.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
				"refund_id":  refund.ID,
				"payment_id": refund.PaymentID,
			}), "refund webhook matches no order")
			p.metrics.IncRefundOutcome("unmatched")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "correlate refund webhook")
	}

	event, outcome := p.resolveRefundEvent(envelope.Event, refund.Status, order)
	if event == "" {
		p.metrics.IncRefundOutcome(outcome)
		return nil
	}

	change, err := lifecycle.Attempt(orders.SnapshotOf(order), event)
	if err != nil {
		// an already-settled order replaying is normal; anything else is a
		// state conflict worth seeing in the logs
		p.logg.Info(p.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"event":    string(event),
			"reason":   err.Error(),
		}), "refund webhook not applicable to current state")
		p.metrics.IncRefundOutcome("stale")
		return nil
	}

	extra := map[string]any{"razorpay_refund_id": refund.ID}
	if event == lifecycle.EventRefundFailed || event == lifecycle.EventReturnRefundFailed {
		var parsed razorpayErrorBody
		_ = json.Unmarshal(body, &parsed)
		extra["refund_error_code"] = parsed.Error.Code
		extra["refund_error_reason"] = parsed.Error.Reason
		extra["refund_error_description"] = parsed.Error.Description
	}

	err = p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := p.events.RecordOnce(ctx, tx, ProviderRazorpay, eventID, envelope.Event, &order.ID, json.RawMessage(body))
		if err != nil {
			return err
		}
		if !fresh {
			p.metrics.IncRefundOutcome("replay")
			return nil
		}

		applied, err := p.repo.WithTx(tx).ApplyChange(ctx, order.ID, change, extra)
		if err != nil {
			return err
		}
		if !applied {
			p.metrics.IncRefundOutcome("lost_race")
			return nil
		}
		if event == lifecycle.EventRefundCompleted || event == lifecycle.EventReturnRefundCompleted {
			if err := inventory.Restore(ctx, tx, restockLines(order.Items)); err != nil {
				return err
			}
		}
		if event == lifecycle.EventReturnRefundCompleted && order.CreditNoteNumber == nil {
			// the inspection flow leaves the credit note to us when the
			// gateway settles asynchronously
			refundPaise := refund.AmountPaise
			if refundPaise == 0 {
				refundPaise = order.AmountPaise - order.DeductionPaise
			}
			note, err := returns.IssueCreditNote(ctx, tx, order.ID, order.AmountPaise, order.DeductionPaise, refundPaise, derefString(order.ReturnReason), time.Now().UTC())
			if err != nil {
				return err
			}
			if err := p.repo.WithTx(tx).UpdateColumns(ctx, order.ID, map[string]any{
				"credit_note_number": note.Number,
			}); err != nil {
				return err
			}
			order.CreditNoteNumber = &note.Number
		}
		p.metrics.IncRefundOutcome(outcome)
		return p.enqueueRefundNotification(ctx, tx, event, order, refund.AmountPaise)
	})
	if err != nil {
		return err
	}

	if p.flush != nil {
		p.flush.Flush(context.WithoutCancel(ctx))
	}
	return nil
}

// resolveRefundEvent maps a gateway refund update onto the order's lifecycle,
// picking the return-flow event when the order is mid-return.
func (p *RazorpayProcessor) resolveRefundEvent(webhookEvent, refundStatus string, order *models.Order) (lifecycle.Event, string) {
	inReturnFlow := order.ReturnStatus == enums.ReturnStatusRefundInitiated ||
		order.ReturnStatus == enums.ReturnStatusDelivered

	switch webhookEvent {
	case "refund.created":
		if inReturnFlow {
			return lifecycle.EventReturnRefundInitiated, "initiated"
		}
		return lifecycle.EventRefundInitiated, "initiated"
	case "refund.failed":
		if inReturnFlow {
			return lifecycle.EventReturnRefundFailed, "failed"
		}
		return lifecycle.EventRefundFailed, "failed"
	case "refund.processed":
		switch refundStatus {
		case "processed", "completed", "succeeded":
			if inReturnFlow {
				return lifecycle.EventReturnRefundCompleted, "completed"
			}
			return lifecycle.EventRefundCompleted, "completed"
		case "failed":
			if inReturnFlow {
				return lifecycle.EventReturnRefundFailed, "failed"
			}
			return lifecycle.EventRefundFailed, "failed"
		}
	}
	return "", "ignored"
}

func (p *RazorpayProcessor) enqueueRefundNotification(ctx context.Context, tx *gorm.DB, event lifecycle.Event, order *models.Order, refundPaise int64) error {
	if refundPaise == 0 {
		refundPaise = order.AmountPaise
	}
	payload := notifications.Payload{
		Recipient:   recipientOf(order),
		RefundPaise: refundPaise,
	}
	switch event {
	case lifecycle.EventRefundCompleted:
		return p.notify.Enqueue(ctx, tx, enums.NotificationRefundCompleted, order.ID, payload)
	case lifecycle.EventReturnRefundCompleted:
		if order.CreditNoteNumber != nil {
			payload.CreditNote = *order.CreditNoteNumber
		}
		return p.notify.Enqueue(ctx, tx, enums.NotificationReturnRefundCompleted, order.ID, payload)
	}
	return nil
}

func (p *RazorpayProcessor) processPaymentFailed(ctx context.Context, eventID string, envelope razorpayEnvelope, body []byte) error {
	payment := envelope.Payload.Payment.Entity
	if payment.OrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment webhook carries no order reference")
	}

	order, err := p.repo.FindByRazorpayOrderID(ctx, payment.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
				"razorpay_order_id": payment.OrderID,
			}), "payment webhook matches no order")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "correlate payment webhook")
	}

	change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventPaymentFailed)
	if err != nil {
		// the frontend handshake may have already marked the order paid
		return nil
	}

	return p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := p.events.RecordOnce(ctx, tx, ProviderRazorpay, eventID, envelope.Event, &order.ID, json.RawMessage(body))
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		_, err = p.repo.WithTx(tx).ApplyChange(ctx, order.ID, change, nil)
		return err
	})
}

func recipientOf(order *models.Order) string {
	if order.GuestEmail != nil {
		return *order.GuestEmail
	}
	return ""
}

func restockLines(items []models.OrderItem) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		lines = append(lines, inventory.Line{ProductID: *item.ProductID, Qty: item.Qty})
	}
	return lines
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
