package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/lifecycle"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
)

// ItemSummary is one purchased line on the tracking page.
type ItemSummary struct {
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPricePaise int64  `json:"unit_price_paise"`
}

// StatusProjection is the minimal view returned by the public status read. It
// deliberately carries no address or contact fields beyond what a tracking
// page needs.
type StatusProjection struct {
	OrderID            uuid.UUID                `json:"order_id"`
	AmountPaise        int64                    `json:"amount_paise"`
	Currency           enums.Currency           `json:"currency"`
	PaymentStatus      enums.PaymentStatus      `json:"payment_status"`
	OrderStatus        enums.OrderStatus        `json:"order_status"`
	ShipmentStatus     enums.ShipmentStatus     `json:"shipment_status"`
	CancellationStatus enums.CancellationStatus `json:"cancellation_status"`
	RefundStatus       enums.RefundStatus       `json:"refund_status"`
	ReturnStatus       enums.ReturnStatus       `json:"return_status"`
	AWB                *string                  `json:"awb,omitempty"`
	Items              []ItemSummary            `json:"items"`
	CreatedAt          time.Time                `json:"created_at"`
	DeliveredAt        *time.Time               `json:"delivered_at,omitempty"`
}

// SnapshotOf extracts the six status dimensions used for transition checks.
func SnapshotOf(order *models.Order) lifecycle.Snapshot {
	return lifecycle.Snapshot{
		Payment:      order.PaymentStatus,
		Order:        order.OrderStatus,
		Shipment:     order.ShipmentStatus,
		Cancellation: order.CancellationStatus,
		Refund:       order.RefundStatus,
		Return:       order.ReturnStatus,
	}
}

// Project maps an order row onto its public status view.
func Project(order *models.Order) StatusProjection {
	items := make([]ItemSummary, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemSummary{
			Name:           item.Name,
			Qty:            item.Qty,
			UnitPricePaise: item.UnitPricePaise,
		})
	}
	return StatusProjection{
		OrderID:            order.ID,
		AmountPaise:        order.AmountPaise,
		Currency:           order.Currency,
		PaymentStatus:      order.PaymentStatus,
		OrderStatus:        order.OrderStatus,
		ShipmentStatus:     order.ShipmentStatus,
		CancellationStatus: order.CancellationStatus,
		RefundStatus:       order.RefundStatus,
		ReturnStatus:       order.ReturnStatus,
		AWB:                order.AWB,
		Items:              items,
		CreatedAt:          order.CreatedAt,
		DeliveredAt:        order.DeliveredAt,
	}
}
