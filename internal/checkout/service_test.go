package checkout

import (
	"context"
	"testing"

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
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/types"
)

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
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
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedCheckoutProduct(t *testing.T, db *gorm.DB, name string, pricePaise int64, stock int) uuid.UUID {
	t.Helper()
	p := models.Product{
		ID:         uuid.New(),
		SKU:        name,
		Name:       name,
		PricePaise: pricePaise,
		StockQty:   stock,
		IsActive:   true,
	}
	require.NoError(t, db.Create(&p).Error)
	return p.ID
}

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.Transaction(fn)
}

type fakeGateway struct {
	created    []razorpay.OrderCreateParams
	failCreate error
	verifyOK   bool
}

func (f *fakeGateway) CreateOrder(_ context.Context, params razorpay.OrderCreateParams) (*razorpay.OrderResult, error) {
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	f.created = append(f.created, params)
	return &razorpay.OrderResult{
		ID:          "order_rzp_" + uuid.NewString()[:8],
		AmountPaise: params.AmountPaise,
		Currency:    params.Currency,
		Status:      "created",
	}, nil
}

func (f *fakeGateway) VerifyPaymentSignature(_, _, _ string) bool {
	return f.verifyOK
}

func (f *fakeGateway) KeyID() string { return "rzp_test_key" }

type recordedNotification struct {
	eventType enums.NotificationEventType
	orderID   uuid.UUID
	payload   notifications.Payload
}

type fakeNotifier struct {
	enqueued []recordedNotification
}

func (f *fakeNotifier) Enqueue(_ context.Context, _ *gorm.DB, eventType enums.NotificationEventType, orderID uuid.UUID, payload notifications.Payload) error {
	f.enqueued = append(f.enqueued, recordedNotification{eventType: eventType, orderID: orderID, payload: payload})
	return nil
}

type fakeFlusher struct {
	flushes int
}

func (f *fakeFlusher) Flush(_ context.Context) { f.flushes++ }

func checkoutAddress() types.Address {
	return types.Address{
		Name:    "Asha Rao",
		Phone:   "+919812345678",
		Line1:   "14 MG Road",
		City:    "Bengaluru",
		State:   "Karnataka",
		Pincode: "560001",
	}
}

func newCheckoutService(t *testing.T, db *gorm.DB, gateway *fakeGateway, notify *fakeNotifier, flush *fakeFlusher) Service {
	t.Helper()
	svc, err := NewService(orders.NewRepository(db), gormTxRunner{db: db}, gateway, notify, flush)
	require.NoError(t, err)
	return svc
}

func TestCheckoutCreatesOrderAndGatewayOrder(t *testing.T) {
	t.Parallel()
	db := setupCheckoutTestDB(t)
	ctx := context.Background()

	teaID := seedCheckoutProduct(t, db, "Tulsi Green Tea", 25000, 10)
	gheeID := seedCheckoutProduct(t, db, "A2 Cow Ghee", 90000, 4)

	gateway := &fakeGateway{}
	notify := &fakeNotifier{}
	svc := newCheckoutService(t, db, gateway, notify, &fakeFlusher{})

	result, err := svc.Checkout(ctx, CheckoutInput{
		Email:           "Asha@Example.com",
		ShippingAddress: checkoutAddress(),
		Items: []ItemInput{
			{ProductID: teaID, Qty: 2},
			{ProductID: gheeID, Qty: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2*25000+90000), result.AmountPaise)
	assert.Equal(t, enums.CurrencyINR, result.Currency)
	assert.Equal(t, "rzp_test_key", result.RazorpayKeyID)
	assert.NotEmpty(t, result.RazorpayOrderID)

	var order models.Order
	require.NoError(t, db.Preload("Items").First(&order, "id = ?", result.OrderID).Error)
	assert.Equal(t, "asha@example.com", *order.GuestEmail)
	assert.Equal(t, enums.PaymentStatusInitiated, order.PaymentStatus)
	assert.Equal(t, enums.OrderStatusCheckedOut, order.OrderStatus)
	assert.Equal(t, result.RazorpayOrderID, *order.RazorpayOrderID)
	assert.Len(t, order.Items, 2)

	// no separate billing address given, so the shipping one is billed
	require.NotNil(t, order.BillingAddress)
	assert.Equal(t, checkoutAddress(), *order.BillingAddress)

	var tea models.Product
	require.NoError(t, db.First(&tea, "id = ?", teaID).Error)
	assert.Equal(t, 8, tea.StockQty)

	require.Len(t, gateway.created, 1)
	assert.Equal(t, result.AmountPaise, gateway.created[0].AmountPaise)
	assert.Equal(t, order.ID.String(), gateway.created[0].Receipt)
}

func TestCheckoutStoresSeparateBillingAddress(t *testing.T) {
	t.Parallel()
	db := setupCheckoutTestDB(t)
	ctx := context.Background()

	teaID := seedCheckoutProduct(t, db, "Tulsi Green Tea", 25000, 10)
	svc := newCheckoutService(t, db, &fakeGateway{}, &fakeNotifier{}, &fakeFlusher{})

	billing := types.Address{
		Name:    "Asha Rao",
		Phone:   "+919812345678",
		Line1:   "42 Residency Road",
		City:    "Mysuru",
		State:   "Karnataka",
		Pincode: "570001",
	}
	result, err := svc.Checkout(ctx, CheckoutInput{
		Email:           "asha@example.com",
		ShippingAddress: checkoutAddress(),
		BillingAddress:  &billing,
		Items:           []ItemInput{{ProductID: teaID, Qty: 1}},
	})
	require.NoError(t, err)

	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", result.OrderID).Error)
	assert.Equal(t, checkoutAddress(), order.ShippingAddress)
	require.NotNil(t, order.BillingAddress)
	assert.Equal(t, billing, *order.BillingAddress)
}

func TestCheckoutInsufficientStockLeavesNothingBehind(t *testing.T) {
	t.Parallel()
	db := setupCheckoutTestDB(t)
	ctx := context.Background()

	honeyID := seedCheckoutProduct(t, db, "Forest Honey", 45000, 1)

	svc := newCheckoutService(t, db, &fakeGateway{}, &fakeNotifier{}, &fakeFlusher{})

	_, err := svc.Checkout(ctx, CheckoutInput{
		Email:           "asha@example.com",
		ShippingAddress: checkoutAddress(),
		Items:           []ItemInput{{ProductID: honeyID, Qty: 2}},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
	assert.Contains(t, appErr.Message(), "Insufficient stock for Forest Honey. Available: 1")

	var orderCount, itemCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&itemCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, itemCount)

	var honey models.Product
	require.NoError(t, db.First(&honey, "id = ?", honeyID).Error)
	assert.Equal(t, 1, honey.StockQty)
}

func TestCheckoutGatewayFailureRollsBack(t *testing.T) {
	t.Parallel()
	db := setupCheckoutTestDB(t)
	ctx := context.Background()

	teaID := seedCheckoutProduct(t, db, "Tulsi Green Tea", 25000, 5)

	gateway := &fakeGateway{
		failCreate: pkgerrors.New(pkgerrors.CodeDependency, "payment gateway unavailable"),
	}
	svc := newCheckoutService(t, db, gateway, &fakeNotifier{}, &fakeFlusher{})

	_, err := svc.Checkout(ctx, CheckoutInput{
		Email:           "asha@example.com",
		ShippingAddress: checkoutAddress(),
		Items:           []ItemInput{{ProductID: teaID, Qty: 1}},
	})
	require.Error(t, err)

	var orderCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	var tea models.Product
	require.NoError(t, db.First(&tea, "id = ?", teaID).Error)
	assert.Equal(t, 5, tea.StockQty)
}

func TestVerifyPaymentMarksPaidAndQueuesEmail(t *testing.T) {
	t.Parallel()
	db := setupCheckoutTestDB(t)
	ctx := context.Background()

	teaID := seedCheckoutProduct(t, db, "Tulsi Green Tea", 25000, 5)

	gateway := &fakeGateway{verifyOK: true}
	notify := &fakeNotifier{}
	flush := &fakeFlusher{}
	svc := newCheckoutService(t, db, gateway, notify, flush)

	created, err := svc.Checkout(ctx, CheckoutInput{
		Email:           "asha@example.com",
		ShippingAddress: checkoutAddress(),
		Items:           []ItemInput{{ProductID: teaID, Qty: 1}},
	})
	require.NoError(t, err)

	projection, err := svc.VerifyPayment(ctx, VerifyInput{
		OrderID:           created.OrderID,
		RazorpayOrderID:   created.RazorpayOrderID,
		RazorpayPaymentID: "pay_123",
		Signature:         "sig",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, projection.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, projection.OrderStatus)

	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", created.OrderID).Error)
	assert.Equal(t, "pay_123", *order.RazorpayPaymentID)
	assert.NotNil(t, order.PaidAt)
	assert.NotNil(t, order.ConfirmedAt)

	require.Len(t, notify.enqueued, 1)
	assert.Equal(t, enums.NotificationOrderConfirmed, notify.enqueued[0].eventType)
	assert.Equal(t, created.OrderID, notify.enqueued[0].orderID)
	assert.Equal(t, "asha@example.com", notify.enqueued[0].payload.Recipient)
	assert.Equal(t, int64(25000), notify.enqueued[0].payload.AmountPaise)
	assert.Equal(t, 1, flush.flushes)
}

func TestVerifyPaymentRejectsBadSignature(t *testing.T) {
	t.Parallel()
	db := setupCheckoutTestDB(t)
	ctx := context.Background()

	teaID := seedCheckoutProduct(t, db, "Tulsi Green Tea", 25000, 5)

	gateway := &fakeGateway{verifyOK: false}
	notify := &fakeNotifier{}
	svc := newCheckoutService(t, db, gateway, notify, &fakeFlusher{})

	created, err := svc.Checkout(ctx, CheckoutInput{
		Email:           "asha@example.com",
		ShippingAddress: checkoutAddress(),
		Items:           []ItemInput{{ProductID: teaID, Qty: 1}},
	})
	require.NoError(t, err)

	_, err = svc.VerifyPayment(ctx, VerifyInput{
		OrderID:           created.OrderID,
		RazorpayOrderID:   created.RazorpayOrderID,
		RazorpayPaymentID: "pay_123",
		Signature:         "forged",
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", created.OrderID).Error)
	assert.Equal(t, enums.PaymentStatusInitiated, order.PaymentStatus)
	assert.Nil(t, order.RazorpayPaymentID)
	assert.Empty(t, notify.enqueued)
}

func TestVerifyPaymentReplayIsIdempotent(t *testing.T) {
	t.Parallel()
	db := setupCheckoutTestDB(t)
	ctx := context.Background()

	teaID := seedCheckoutProduct(t, db, "Tulsi Green Tea", 25000, 5)

	gateway := &fakeGateway{verifyOK: true}
	notify := &fakeNotifier{}
	svc := newCheckoutService(t, db, gateway, notify, &fakeFlusher{})

	created, err := svc.Checkout(ctx, CheckoutInput{
		Email:           "asha@example.com",
		ShippingAddress: checkoutAddress(),
		Items:           []ItemInput{{ProductID: teaID, Qty: 1}},
	})
	require.NoError(t, err)

	input := VerifyInput{
		OrderID:           created.OrderID,
		RazorpayOrderID:   created.RazorpayOrderID,
		RazorpayPaymentID: "pay_123",
		Signature:         "sig",
	}
	_, err = svc.VerifyPayment(ctx, input)
	require.NoError(t, err)

	projection, err := svc.VerifyPayment(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, projection.PaymentStatus)
	// the replay must not enqueue a second confirmation email
	assert.Len(t, notify.enqueued, 1)
}
