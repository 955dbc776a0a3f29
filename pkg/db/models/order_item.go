package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the product snapshot at checkout time so later catalog
// edits never change what the customer bought.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      *uuid.UUID `gorm:"column:product_id;type:uuid"`
	Name           string     `gorm:"column:name;not null"`
	UnitPricePaise int64      `gorm:"column:unit_price_paise;not null"`
	Qty            int        `gorm:"column:qty;not null"`
	TotalPaise     int64      `gorm:"column:total_paise;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
