package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/lifecycle"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/pagination"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByRazorpayOrderID(ctx context.Context, razorpayOrderID string) (*models.Order, error)
	FindByRefundOrPaymentID(ctx context.Context, refundID, paymentID string) (*models.Order, error)
	FindByAWB(ctx context.Context, awb string) (*models.Order, error)
	FindByReturnAWB(ctx context.Context, awb string) (*models.Order, error)
	FindManyByIDs(ctx context.Context, orderIDs []uuid.UUID) ([]models.Order, error)
	ListByOrderStatus(ctx context.Context, status enums.OrderStatus, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ApplyChange(ctx context.Context, orderID uuid.UUID, change lifecycle.Change, extra map[string]any) (bool, error)
	UpdateColumns(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
}
