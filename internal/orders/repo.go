package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/lifecycle"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByRazorpayOrderID(ctx context.Context, razorpayOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("razorpay_order_id = ?", razorpayOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByRefundOrPaymentID resolves a refund webhook to its order, preferring
// the refund id and falling back to the payment id. Items are loaded because
// a settlement restocks them.
func (r *repository) FindByRefundOrPaymentID(ctx context.Context, refundID, paymentID string) (*models.Order, error) {
	var order models.Order
	if refundID != "" {
		err := r.db.WithContext(ctx).
			Preload("Items").
			Where("razorpay_refund_id = ?", refundID).
			First(&order).Error
		if err == nil {
			return &order, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}
	if paymentID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("razorpay_payment_id = ?", paymentID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByAWB(ctx context.Context, awb string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("awb = ?", awb).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByReturnAWB(ctx context.Context, awb string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("return_pickup_awb = ?", awb).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindManyByIDs(ctx context.Context, orderIDs []uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("id IN ?", orderIDs).
		Find(&rows).Error
	return rows, err
}

// ListByOrderStatus pages through orders in a status, oldest first. The
// (created_at, id) pair makes the sort total, so a cursor taken from the last
// row of one page never skips or repeats rows on the next.
func (r *repository) ListByOrderStatus(ctx context.Context, status enums.OrderStatus, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	var rows []models.Order
	q := r.db.WithContext(ctx).
		Where("order_status = ?", status).
		Order("created_at ASC").
		Order("id ASC")
	if cursor != nil {
		q = q.Where("created_at > ? OR (created_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// ApplyChange persists a lifecycle change as one conditional UPDATE. The WHERE
// clause repeats the change's preconditions, so of two racing writers exactly
// one matches; the other sees ok=false and must re-read before reacting.
func (r *repository) ApplyChange(ctx context.Context, orderID uuid.UUID, change lifecycle.Change, extra map[string]any) (bool, error) {
	updates := map[string]any{}
	if change.Payment != nil {
		updates["payment_status"] = *change.Payment
	}
	if change.Order != nil {
		updates["order_status"] = *change.Order
	}
	if change.Shipment != nil {
		updates["shipment_status"] = *change.Shipment
	}
	if change.Cancellation != nil {
		updates["cancellation_status"] = *change.Cancellation
	}
	if change.Refund != nil {
		updates["refund_status"] = *change.Refund
	}
	if change.Return != nil {
		updates["return_status"] = *change.Return
	}
	now := time.Now()
	for _, col := range change.Timestamps {
		updates[col] = now
	}
	for col, val := range extra {
		updates[col] = val
	}
	if len(updates) == 0 {
		return true, nil
	}

	q := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID)
	if len(change.RequirePayment) > 0 {
		q = q.Where("payment_status IN ?", change.RequirePayment)
	}
	if len(change.RequireOrder) > 0 {
		q = q.Where("order_status IN ?", change.RequireOrder)
	}
	if len(change.RequireShipment) > 0 {
		q = q.Where("shipment_status IN ?", change.RequireShipment)
	}
	if len(change.RequireCancellation) > 0 {
		q = q.Where("cancellation_status IN ?", change.RequireCancellation)
	}
	if len(change.RequireReturn) > 0 {
		q = q.Where("return_status IN ?", change.RequireReturn)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateColumns writes non-lifecycle columns (correlation ids, error fields)
// without status preconditions.
func (r *repository) UpdateColumns(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}
