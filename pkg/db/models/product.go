package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the storefront listing. StockQty is decremented atomically at
// checkout and restored on cancellation or return.
type Product struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU         string    `gorm:"column:sku;not null;uniqueIndex"`
	Name        string    `gorm:"column:name;not null"`
	Description *string   `gorm:"column:description"`
	PricePaise  int64     `gorm:"column:price_paise;not null"`
	StockQty    int       `gorm:"column:stock_qty;not null;default:0"`
	WeightGrams int       `gorm:"column:weight_grams;not null;default:0"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
