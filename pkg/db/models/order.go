package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/types"
)

// Order is the single source of truth for an order's lifecycle. Payment,
// shipment, cancellation, refund and return progress are tracked as
// independent status dimensions on the same row so every transition can be
// guarded by one conditional UPDATE.
type Order struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     *uuid.UUID `gorm:"column:user_id;type:uuid"`
	GuestEmail *string    `gorm:"column:guest_email"`
	GuestPhone *string    `gorm:"column:guest_phone"`

	AmountPaise int64          `gorm:"column:amount_paise;not null"`
	Currency    enums.Currency `gorm:"column:currency;type:text;not null;default:'INR'"`

	ShippingAddress types.Address  `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	BillingAddress  *types.Address `gorm:"column:billing_address;type:jsonb;serializer:json"`

	PaymentStatus      enums.PaymentStatus      `gorm:"column:payment_status;type:text;not null;default:'initiated'"`
	OrderStatus        enums.OrderStatus        `gorm:"column:order_status;type:text;not null;default:'CHECKED_OUT'"`
	ShipmentStatus     enums.ShipmentStatus     `gorm:"column:shipment_status;type:text;not null;default:'NOT_SHIPPED'"`
	CancellationStatus enums.CancellationStatus `gorm:"column:cancellation_status;type:text;not null;default:'none'"`
	RefundStatus       enums.RefundStatus       `gorm:"column:refund_status;type:text;not null;default:'none'"`
	ReturnStatus       enums.ReturnStatus       `gorm:"column:return_status;type:text;not null;default:'NOT_REQUESTED'"`

	RazorpayOrderID   *string `gorm:"column:razorpay_order_id;uniqueIndex"`
	RazorpayPaymentID *string `gorm:"column:razorpay_payment_id"`
	RazorpayRefundID  *string `gorm:"column:razorpay_refund_id"`

	ShiprocketOrderID    *int64  `gorm:"column:shiprocket_order_id"`
	ShiprocketShipmentID *int64  `gorm:"column:shiprocket_shipment_id"`
	AWB                  *string `gorm:"column:awb;index"`
	ReturnShiprocketID   *int64  `gorm:"column:return_shiprocket_id"`
	ReturnPickupAWB      *string `gorm:"column:return_pickup_awb;index"`
	ManifestBatchID      *string `gorm:"column:manifest_batch_id"`

	RefundErrorCode        *string `gorm:"column:refund_error_code"`
	RefundErrorReason      *string `gorm:"column:refund_error_reason"`
	RefundErrorDescription *string `gorm:"column:refund_error_description"`

	CancellationReason *string `gorm:"column:cancellation_reason"`
	ReturnReason       *string `gorm:"column:return_reason"`

	InspectionNote      *string           `gorm:"column:inspection_note"`
	DeductionPaise      int64             `gorm:"column:deduction_paise;not null;default:0"`
	InspectionPhotoKeys types.StringSlice `gorm:"column:inspection_photo_keys;type:jsonb;serializer:json"`

	CreditNoteNumber *string `gorm:"column:credit_note_number"`

	PaidAt            *time.Time `gorm:"column:paid_at"`
	ConfirmedAt       *time.Time `gorm:"column:confirmed_at"`
	PickedUpAt        *time.Time `gorm:"column:picked_up_at"`
	DeliveredAt       *time.Time `gorm:"column:delivered_at"`
	CancelledAt       *time.Time `gorm:"column:cancelled_at"`
	RefundInitiatedAt *time.Time `gorm:"column:refund_initiated_at"`
	RefundCompletedAt *time.Time `gorm:"column:refund_completed_at"`
	ReturnRequestedAt *time.Time `gorm:"column:return_requested_at"`
	ReturnDeliveredAt *time.Time `gorm:"column:return_delivered_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
