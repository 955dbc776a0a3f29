package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/lifecycle"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/notifications"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/metrics"
)

// shiprocketUpdate is the courier's tracking callback body.
type shiprocketUpdate struct {
	AWB           string `json:"awb"`
	CurrentStatus string `json:"current_status"`
	OrderID       string `json:"order_id"`
	Timestamp     string `json:"current_timestamp"`
}

// ShiprocketProcessor applies courier tracking callbacks to orders. The
// courier authenticates with a static shared token; callers answer 200 for
// every authenticated delivery, including ones we ignore.
type ShiprocketProcessor struct {
	repo    orders.Repository
	tx      txRunner
	events  *EventStore
	token   string
	notify  notifier
	flush   flusher
	metrics *metrics.WebhookMetrics
	logg    *logger.Logger
}

// NewShiprocketProcessor builds the courier webhook processor.
func NewShiprocketProcessor(repo orders.Repository, tx txRunner, events *EventStore, token string, notify notifier, flush flusher, m *metrics.WebhookMetrics, logg *logger.Logger) *ShiprocketProcessor {
	return &ShiprocketProcessor{
		repo:    repo,
		tx:      tx,
		events:  events,
		token:   token,
		notify:  notify,
		flush:   flush,
		metrics: m,
		logg:    logg,
	}
}

// Authorized checks the courier's shared token in constant time.
func (p *ShiprocketProcessor) Authorized(token string) bool {
	if p.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p.token), []byte(token)) == 1
}

// Process handles one tracking update. Deliveries for unknown AWBs are
// acknowledged and dropped; forward-leg statuses outside the lifecycle are
// stored verbatim on the order.
func (p *ShiprocketProcessor) Process(ctx context.Context, body []byte) error {
	started := time.Now()
	defer func() { p.metrics.ObserveDuration(ProviderShiprocket, time.Since(started)) }()

	var update shiprocketUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed tracking body")
	}
	status := strings.ToUpper(strings.TrimSpace(update.CurrentStatus))
	p.metrics.IncReceived(ProviderShiprocket, status)

	if update.AWB == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking update carries no awb")
	}

	// a return pickup has its own AWB, so the return leg is checked first
	order, isReturnLeg, err := p.lookup(ctx, update.AWB)
	if err != nil {
		return err
	}
	if order == nil {
		p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
			"awb":    update.AWB,
			"status": status,
		}), "tracking update matches no order")
		return nil
	}

	event, emailType := p.resolveTrackingEvent(status, isReturnLeg)
	if event == "" {
		if isReturnLeg {
			p.logg.Info(p.logg.WithFields(ctx, map[string]any{
				"order_id": order.ID.String(),
				"awb":      update.AWB,
				"status":   status,
			}), "ignoring untracked return-leg courier status")
			return nil
		}
		return p.recordCourierStatus(ctx, order, update, status, body)
	}

	change, err := lifecycle.Attempt(orders.SnapshotOf(order), event)
	if err != nil {
		p.logg.Info(p.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"event":    string(event),
			"reason":   err.Error(),
		}), "tracking update not applicable to current state")
		return nil
	}

	eventID := fmt.Sprintf("%s:%s:%s", update.AWB, status, update.Timestamp)
	err = p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := p.events.RecordOnce(ctx, tx, ProviderShiprocket, eventID, status, &order.ID, json.RawMessage(body))
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}

		applied, err := p.repo.WithTx(tx).ApplyChange(ctx, order.ID, change, nil)
		if err != nil {
			return err
		}
		if !applied || emailType == "" {
			return nil
		}
		return p.notify.Enqueue(ctx, tx, emailType, order.ID, notifications.Payload{
			Recipient: recipientOf(order),
			AWB:       update.AWB,
		})
	})
	if err != nil {
		return err
	}

	if p.flush != nil {
		p.flush.Flush(context.WithoutCancel(ctx))
	}
	return nil
}

// recordCourierStatus stores a forward-leg label we do not map onto the
// lifecycle. The shipment status column is a half-open set for exactly this
// reason: the courier's own wording still tells the customer where the parcel
// is. No order status change, no email.
func (p *ShiprocketProcessor) recordCourierStatus(ctx context.Context, order *models.Order, update shiprocketUpdate, status string, body []byte) error {
	eventID := fmt.Sprintf("%s:%s:%s", update.AWB, status, update.Timestamp)
	return p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := p.events.RecordOnce(ctx, tx, ProviderShiprocket, eventID, status, &order.ID, json.RawMessage(body))
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		return p.repo.WithTx(tx).UpdateColumns(ctx, order.ID, map[string]any{
			"shipment_status": status,
		})
	})
}

func (p *ShiprocketProcessor) lookup(ctx context.Context, awb string) (*models.Order, bool, error) {
	order, err := p.repo.FindByReturnAWB(ctx, awb)
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "correlate return awb")
	}

	order, err = p.repo.FindByAWB(ctx, awb)
	if err == nil {
		return order, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "correlate awb")
	}
	return nil, false, nil
}

func (p *ShiprocketProcessor) resolveTrackingEvent(status string, isReturnLeg bool) (lifecycle.Event, enums.NotificationEventType) {
	if isReturnLeg {
		switch status {
		case "PICKED UP", "PICKED_UP", "IN TRANSIT", "IN_TRANSIT":
			return lifecycle.EventReturnInTransit, ""
		case "DELIVERED":
			return lifecycle.EventReturnDelivered, ""
		}
		return "", ""
	}
	switch status {
	case "PICKED UP", "PICKED_UP", "SHIPPED":
		return lifecycle.EventShipmentPickedUp, enums.NotificationOrderShipped
	case "DELIVERED":
		return lifecycle.EventShipmentDelivered, enums.NotificationOrderDelivered
	}
	return "", ""
}
