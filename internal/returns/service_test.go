package returns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/notifications"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/razorpay"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/shiprocket"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/types"
)

func setupReturnsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:returns_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  price_paise INTEGER NOT NULL,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  weight_grams INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  guest_email TEXT,
  guest_phone TEXT,
  amount_paise INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'INR',
  shipping_address TEXT NOT NULL,
  billing_address TEXT,
  payment_status TEXT NOT NULL DEFAULT 'initiated',
  order_status TEXT NOT NULL DEFAULT 'CHECKED_OUT',
  shipment_status TEXT NOT NULL DEFAULT 'NOT_SHIPPED',
  cancellation_status TEXT NOT NULL DEFAULT 'none',
  refund_status TEXT NOT NULL DEFAULT 'none',
  return_status TEXT NOT NULL DEFAULT 'NOT_REQUESTED',
  razorpay_order_id TEXT,
  razorpay_payment_id TEXT,
  razorpay_refund_id TEXT,
  shiprocket_order_id INTEGER,
  shiprocket_shipment_id INTEGER,
  awb TEXT,
  return_shiprocket_id INTEGER,
  return_pickup_awb TEXT,
  manifest_batch_id TEXT,
  refund_error_code TEXT,
  refund_error_reason TEXT,
  refund_error_description TEXT,
  cancellation_reason TEXT,
  return_reason TEXT,
  inspection_note TEXT,
  deduction_paise INTEGER NOT NULL DEFAULT 0,
  inspection_photo_keys TEXT,
  credit_note_number TEXT,
  paid_at DATETIME,
  confirmed_at DATETIME,
  picked_up_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  refund_initiated_at DATETIME,
  refund_completed_at DATETIME,
  return_requested_at DATETIME,
  return_delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  name TEXT NOT NULL,
  unit_price_paise INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  total_paise INTEGER NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS credit_notes (
  id TEXT PRIMARY KEY,
  number TEXT NOT NULL UNIQUE,
  order_id TEXT NOT NULL UNIQUE,
  gross_paise INTEGER NOT NULL,
  deduction_paise INTEGER NOT NULL DEFAULT 0,
  refund_paise INTEGER NOT NULL,
  reason TEXT,
  issued_at DATETIME
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type returnsTxRunner struct {
	db *gorm.DB
}

func (g returnsTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.Transaction(fn)
}

type stubRefundGateway struct {
	fail    error
	status  string
	amounts []int64
}

func (s *stubRefundGateway) CreateRefund(_ context.Context, _ string, amountPaise int64, _ map[string]any) (*razorpay.RefundResult, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.amounts = append(s.amounts, amountPaise)
	status := s.status
	if status == "" {
		status = "processed"
	}
	return &razorpay.RefundResult{ID: "rfnd_" + uuid.NewString()[:8], Status: status}, nil
}

type stubCourier struct {
	failReturn   error
	returnOrders []string
	pickups      []int64
	manifested   [][]int64
}

func (s *stubCourier) CreateReturnShipment(_ context.Context, params shiprocket.CreateShipmentParams) (*shiprocket.Shipment, error) {
	if s.failReturn != nil {
		return nil, s.failReturn
	}
	s.returnOrders = append(s.returnOrders, params.OrderRef)
	return &shiprocket.Shipment{OrderID: 7001, ShipmentID: 8001, AWB: "RETAWB100", Status: "NEW"}, nil
}

func (s *stubCourier) GenerateManifest(_ context.Context, shipmentIDs []int64) (string, error) {
	s.manifested = append(s.manifested, shipmentIDs)
	return "https://cdn.shiprocket.test/manifest.pdf", nil
}

func (s *stubCourier) SchedulePickup(_ context.Context, shipmentID int64) error {
	s.pickups = append(s.pickups, shipmentID)
	return nil
}

type stubPhotoStore struct {
	keys []string
}

func (s *stubPhotoStore) MaxPhotoCount() int { return 3 }

func (s *stubPhotoStore) ValidatePhoto(contentType string, size int64) error {
	if contentType != "image/jpeg" && contentType != "image/png" {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported photo content type %q", contentType))
	}
	if size <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "photo is empty")
	}
	return nil
}

func (s *stubPhotoStore) UploadInspectionPhoto(_ context.Context, orderID string, _ io.Reader, _ string, _ int64) (string, error) {
	key := "returns/" + orderID + "/" + uuid.NewString() + ".jpg"
	s.keys = append(s.keys, key)
	return key, nil
}

type captureNotifier struct {
	queued []enums.NotificationEventType
}

func (c *captureNotifier) Enqueue(_ context.Context, _ *gorm.DB, eventType enums.NotificationEventType, _ uuid.UUID, _ notifications.Payload) error {
	c.queued = append(c.queued, eventType)
	return nil
}

type noopFlusher struct{}

func (noopFlusher) Flush(_ context.Context) {}

type returnsHarness struct {
	db      *gorm.DB
	svc     Service
	gateway *stubRefundGateway
	courier *stubCourier
	photos  *stubPhotoStore
	notify  *captureNotifier
}

func newReturnsHarness(t *testing.T) *returnsHarness {
	t.Helper()
	db := setupReturnsTestDB(t)
	h := &returnsHarness{
		db:      db,
		gateway: &stubRefundGateway{},
		courier: &stubCourier{},
		photos:  &stubPhotoStore{},
		notify:  &captureNotifier{},
	}
	svc, err := NewService(
		orders.NewRepository(db),
		returnsTxRunner{db: db},
		h.gateway,
		h.courier,
		h.photos,
		h.notify,
		noopFlusher{},
		nil,
		"warehouse-blr",
		7,
	)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func seedDeliveredOrder(t *testing.T, db *gorm.DB, mutate func(*models.Order)) *models.Order {
	t.Helper()
	email := "asha@example.com"
	paymentID := "pay_888"
	order := &models.Order{
		ID:          uuid.New(),
		GuestEmail:  &email,
		AmountPaise: 50000,
		Currency:    enums.CurrencyINR,
		ShippingAddress: types.Address{
			Name:    "Asha Rao",
			Phone:   "+919812345678",
			Line1:   "14 MG Road",
			City:    "Bengaluru",
			State:   "Karnataka",
			Pincode: "560001",
		},
		PaymentStatus:      enums.PaymentStatusPaid,
		OrderStatus:        enums.OrderStatusDelivered,
		ShipmentStatus:     enums.ShipmentStatusPickupScheduled,
		CancellationStatus: enums.CancellationStatusNone,
		RefundStatus:       enums.RefundStatusNone,
		ReturnStatus:       enums.ReturnStatusNotRequested,
		RazorpayPaymentID:  &paymentID,
	}
	deliveredAt := time.Now().Add(-48 * time.Hour)
	order.DeliveredAt = &deliveredAt
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestRequestBooksReversePickup(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	ctx := context.Background()
	order := seedDeliveredOrder(t, h.db, nil)

	projection, err := h.svc.Request(ctx, RequestInput{
		OrderID: order.ID,
		Email:   "asha@example.com",
		Reason:  "seal was broken on arrival",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusPickupScheduled, projection.ReturnStatus)

	var got models.Order
	require.NoError(t, h.db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, "seal was broken on arrival", *got.ReturnReason)
	assert.Equal(t, int64(7001), *got.ReturnShiprocketID)
	assert.Equal(t, "RETAWB100", *got.ReturnPickupAWB)
	assert.NotNil(t, got.ReturnRequestedAt)

	require.Len(t, h.courier.returnOrders, 1)
	assert.Equal(t, "RET-"+order.ID.String(), h.courier.returnOrders[0])
	assert.Equal(t, []enums.NotificationEventType{enums.NotificationReturnRequested}, h.notify.queued)
}

func TestRequestRejectsUndeliveredOrder(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	order := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.OrderStatus = enums.OrderStatusConfirmed
	})

	_, err := h.svc.Request(context.Background(), RequestInput{
		OrderID: order.ID,
		Email:   "asha@example.com",
		Reason:  "changed my mind",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestRequestRejectsClosedReturnWindow(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	order := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		deliveredAt := time.Now().Add(-9 * 24 * time.Hour)
		o.DeliveredAt = &deliveredAt
	})

	_, err := h.svc.Request(context.Background(), RequestInput{
		OrderID: order.ID,
		Email:   "asha@example.com",
		Reason:  "seal was broken on arrival",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Empty(t, h.courier.returnOrders)

	var got models.Order
	require.NoError(t, h.db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.ReturnStatusNotRequested, got.ReturnStatus)
}

func TestRequestSurvivesCourierFailure(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	h.courier.failReturn = errors.New("courier api down")
	order := seedDeliveredOrder(t, h.db, nil)

	projection, err := h.svc.Request(context.Background(), RequestInput{
		OrderID: order.ID,
		Email:   "asha@example.com",
		Reason:  "seal was broken on arrival",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRequested, projection.ReturnStatus)
}

func TestInspectAndRefundIssuesCreditNoteAfterRefund(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	ctx := context.Background()

	productID := uuid.New()
	require.NoError(t, h.db.Create(&models.Product{
		ID: productID, SKU: "HONEY", Name: "Forest Honey", PricePaise: 50000, StockQty: 2, IsActive: true,
	}).Error)
	order := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.ReturnStatus = enums.ReturnStatusDelivered
	})
	require.NoError(t, h.db.Create(&models.OrderItem{
		ID: uuid.New(), OrderID: order.ID, ProductID: &productID,
		Name: "Forest Honey", UnitPricePaise: 50000, Qty: 1, TotalPaise: 50000,
	}).Error)

	projection, err := h.svc.InspectAndRefund(ctx, InspectionInput{
		OrderID:        order.ID,
		DeductionPaise: 7950,
		Note:           "jar chipped, partial deduction",
		Photos: []PhotoUpload{
			{Body: strings.NewReader("jpeg"), ContentType: "image/jpeg", Size: 4},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRefundCompleted, projection.ReturnStatus)
	assert.Equal(t, enums.OrderStatusReturned, projection.OrderStatus)
	assert.Equal(t, enums.PaymentStatusRefunded, projection.PaymentStatus)

	assert.Equal(t, []int64{42050}, h.gateway.amounts)

	var got models.Order
	require.NoError(t, h.db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, int64(7950), got.DeductionPaise)
	assert.Equal(t, "jar chipped, partial deduction", *got.InspectionNote)
	require.Len(t, got.InspectionPhotoKeys, 1)

	var note models.CreditNote
	require.NoError(t, h.db.First(&note, "order_id = ?", order.ID).Error)
	assert.Equal(t, *got.CreditNoteNumber, note.Number)
	assert.True(t, strings.HasPrefix(note.Number, "CN-"))
	assert.Equal(t, int64(50000), note.GrossPaise)
	assert.Equal(t, int64(7950), note.DeductionPaise)
	assert.Equal(t, int64(42050), note.RefundPaise)

	var product models.Product
	require.NoError(t, h.db.First(&product, "id = ?", productID).Error)
	assert.Equal(t, 3, product.StockQty)

	assert.Equal(t, []enums.NotificationEventType{enums.NotificationReturnRefundCompleted}, h.notify.queued)
}

func TestInspectAndRefundAsyncSettlementDefersCreditNote(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	ctx := context.Background()

	h.gateway.status = "created"
	order := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.ReturnStatus = enums.ReturnStatusDelivered
	})

	projection, err := h.svc.InspectAndRefund(ctx, InspectionInput{
		OrderID:        order.ID,
		DeductionPaise: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRefundInitiated, projection.ReturnStatus)
	assert.Equal(t, enums.PaymentStatusPaid, projection.PaymentStatus)

	// the refund reference is recorded, but the credit note waits for the
	// gateway webhook to confirm the money actually moved
	var got models.Order
	require.NoError(t, h.db.First(&got, "id = ?", order.ID).Error)
	assert.NotNil(t, got.RazorpayRefundID)
	assert.Nil(t, got.CreditNoteNumber)

	var count int64
	require.NoError(t, h.db.Model(&models.CreditNote{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, h.notify.queued)
}

func TestInspectAndRefundRejectedByGatewayRecordsFailure(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	ctx := context.Background()

	h.gateway.status = "failed"
	order := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.ReturnStatus = enums.ReturnStatusDelivered
	})

	_, err := h.svc.InspectAndRefund(ctx, InspectionInput{OrderID: order.ID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())

	var got models.Order
	require.NoError(t, h.db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.ReturnStatusRefundInitiated, got.ReturnStatus)
	assert.Equal(t, enums.RefundStatusFailed, got.RefundStatus)
	assert.Contains(t, *got.RefundErrorDescription, "failed")
	assert.Nil(t, got.CreditNoteNumber)

	var count int64
	require.NoError(t, h.db.Model(&models.CreditNote{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, h.notify.queued)
}

func TestInspectAndRefundRejectsExcessiveDeduction(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	order := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.ReturnStatus = enums.ReturnStatusDelivered
	})

	_, err := h.svc.InspectAndRefund(context.Background(), InspectionInput{
		OrderID:        order.ID,
		DeductionPaise: 50001,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Empty(t, h.gateway.amounts)
}

func TestInspectAndRefundRejectsBadPhotoBeforeMoneyMoves(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	order := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.ReturnStatus = enums.ReturnStatusDelivered
	})

	_, err := h.svc.InspectAndRefund(context.Background(), InspectionInput{
		OrderID: order.ID,
		Photos: []PhotoUpload{
			{Body: strings.NewReader("gif"), ContentType: "image/gif", Size: 3},
		},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Empty(t, h.gateway.amounts)
	assert.Empty(t, h.photos.keys)
}

func TestInspectAndRefundGatewayFailureIsRetryable(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	ctx := context.Background()
	order := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.ReturnStatus = enums.ReturnStatusDelivered
	})

	h.gateway.fail = errors.New("gateway 502")
	_, err := h.svc.InspectAndRefund(ctx, InspectionInput{OrderID: order.ID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())

	var got models.Order
	require.NoError(t, h.db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.ReturnStatusRefundInitiated, got.ReturnStatus)
	assert.Equal(t, enums.RefundStatusFailed, got.RefundStatus)
	assert.Equal(t, "gateway 502", *got.RefundErrorDescription)
	assert.Nil(t, got.CreditNoteNumber)

	h.gateway.fail = nil
	projection, err := h.svc.InspectAndRefund(ctx, InspectionInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRefundCompleted, projection.ReturnStatus)
	assert.NotNil(t, projection)
}

func TestInspectAndRefundRejectsWrongState(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	order := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.ReturnStatus = enums.ReturnStatusInTransit
	})

	_, err := h.svc.InspectAndRefund(context.Background(), InspectionInput{OrderID: order.ID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestManifestBatchSkipsIneligibleOrders(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	ctx := context.Background()

	shipmentID := int64(8055)
	ready := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.ReturnStatus = enums.ReturnStatusPickupScheduled
		o.ReturnShiprocketID = &shipmentID
	})
	notReady := seedDeliveredOrder(t, h.db, func(o *models.Order) {
		o.ReturnStatus = enums.ReturnStatusRequested
	})
	missing := uuid.New()

	result, err := h.svc.ManifestBatch(ctx, []uuid.UUID{ready.ID, notReady.ID, missing})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ready.ID}, result.OrderIDs)
	assert.ElementsMatch(t, []string{notReady.ID.String(), missing.String()}, result.Skipped)
	assert.Equal(t, "https://cdn.shiprocket.test/manifest.pdf", result.ManifestURL)
	assert.Equal(t, []int64{shipmentID}, h.courier.pickups)
	require.Len(t, h.courier.manifested, 1)

	var got models.Order
	require.NoError(t, h.db.First(&got, "id = ?", ready.ID).Error)
	assert.Equal(t, result.BatchID, *got.ManifestBatchID)
}

func TestManifestBatchFailsWhenNothingEligible(t *testing.T) {
	t.Parallel()
	h := newReturnsHarness(t)
	order := seedDeliveredOrder(t, h.db, nil)

	_, err := h.svc.ManifestBatch(context.Background(), []uuid.UUID{order.ID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
