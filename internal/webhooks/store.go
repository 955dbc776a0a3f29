package webhooks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/deepanshucode1-cmd/trisikha-backend/pkg/db"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
)

// Provider labels for stored webhook events.
const (
	ProviderRazorpay   = "razorpay"
	ProviderShiprocket = "shiprocket"
)

// EventStore persists processed webhook deliveries. The (provider, event_id)
// unique index turns replays into no-ops.
type EventStore struct {
	db *gorm.DB
}

// NewEventStore builds the webhook event store.
func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) withTx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// RecordOnce inserts the delivery and reports whether this is the first time
// we have seen it. A duplicate insert returns (false, nil).
func (s *EventStore) RecordOnce(ctx context.Context, tx *gorm.DB, provider, eventID, eventType string, orderID *uuid.UUID, payload json.RawMessage) (bool, error) {
	row := models.WebhookEvent{
		ID:        uuid.New(),
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		OrderID:   orderID,
		Payload:   payload,
	}
	res := s.withTx(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		if dbpkg.IsUniqueViolation(res.Error, "idx_webhook_provider_event") {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "record webhook event")
	}
	return res.RowsAffected > 0, nil
}
