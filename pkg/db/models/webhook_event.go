package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent stores every gateway/courier callback we have processed, keyed
// by the provider's event id. The unique index is what makes webhook replay a
// no-op.
type WebhookEvent struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider   string          `gorm:"column:provider;not null;uniqueIndex:idx_webhook_provider_event,priority:1"`
	EventID    string          `gorm:"column:event_id;not null;uniqueIndex:idx_webhook_provider_event,priority:2"`
	EventType  string          `gorm:"column:event_type;not null"`
	OrderID    *uuid.UUID      `gorm:"column:order_id;type:uuid"`
	Payload    json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ReceivedAt time.Time       `gorm:"column:received_at;autoCreateTime"`
}
