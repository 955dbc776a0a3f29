package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditNote is the accounting record issued after a return refund settles.
// Created only once the gateway confirms the refund, never before.
type CreditNote struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number         string    `gorm:"column:number;not null;uniqueIndex"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	GrossPaise     int64     `gorm:"column:gross_paise;not null"`
	DeductionPaise int64     `gorm:"column:deduction_paise;not null;default:0"`
	RefundPaise    int64     `gorm:"column:refund_paise;not null"`
	Reason         *string   `gorm:"column:reason"`
	IssuedAt       time.Time `gorm:"column:issued_at;autoCreateTime"`
}
