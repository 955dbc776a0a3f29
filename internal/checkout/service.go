package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/inventory"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/lifecycle"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/notifications"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/razorpay"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentGateway interface {
	CreateOrder(ctx context.Context, params razorpay.OrderCreateParams) (*razorpay.OrderResult, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	KeyID() string
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.NotificationEventType, orderID uuid.UUID, payload notifications.Payload) error
}

type flusher interface {
	Flush(ctx context.Context)
}

// ItemInput is one requested line in a checkout.
type ItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,gt=0,lte=100"`
}

// CheckoutInput is the payload for starting a checkout. The billing address
// is optional; when omitted the shipping address is billed.
type CheckoutInput struct {
	Email           string         `json:"email" validate:"required,email,max=254"`
	Phone           string         `json:"phone" validate:"omitempty,e164"`
	ShippingAddress types.Address  `json:"shipping_address" validate:"required"`
	BillingAddress  *types.Address `json:"billing_address" validate:"omitempty"`
	Items           []ItemInput    `json:"items" validate:"required,min=1,max=50,dive"`
}

// CheckoutResult carries everything the frontend needs to open the payment
// widget.
type CheckoutResult struct {
	OrderID         uuid.UUID      `json:"order_id"`
	RazorpayOrderID string         `json:"razorpay_order_id"`
	RazorpayKeyID   string         `json:"razorpay_key_id"`
	AmountPaise     int64          `json:"amount_paise"`
	Currency        enums.Currency `json:"currency"`
}

// VerifyInput is the handshake the frontend posts after the payment widget
// reports success.
type VerifyInput struct {
	OrderID           uuid.UUID `json:"order_id" validate:"required"`
	RazorpayOrderID   string    `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string    `json:"razorpay_payment_id" validate:"required"`
	Signature         string    `json:"razorpay_signature" validate:"required"`
}

// Service runs the checkout and payment-verification flows.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	VerifyPayment(ctx context.Context, input VerifyInput) (*orders.StatusProjection, error)
}

type service struct {
	repo    orders.Repository
	tx      txRunner
	gateway paymentGateway
	notify  notifier
	flush   flusher
}

// NewService builds the checkout service.
func NewService(repo orders.Repository, tx txRunner, gateway paymentGateway, notify notifier, flush flusher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notification queue required")
	}
	return &service{repo: repo, tx: tx, gateway: gateway, notify: notify, flush: flush}, nil
}

// Checkout reserves stock, persists the order with its line items, and
// registers the amount with the payment gateway. Everything runs in one
// transaction: a gateway failure rolls back the order row and the stock
// decrements, so no order is ever left pointing at a payment that cannot
// happen.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	lines := make([]inventory.Line, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Qty: item.Qty})
	}

	var result CheckoutResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		reserved, err := inventory.Reserve(ctx, tx, lines)
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(reserved))
		var total int64
		for i, r := range reserved {
			lineTotal := r.UnitPricePaise * int64(lines[i].Qty)
			total += lineTotal
			productID := r.ProductID
			items = append(items, models.OrderItem{
				ProductID:      &productID,
				Name:           r.Name,
				UnitPricePaise: r.UnitPricePaise,
				Qty:            lines[i].Qty,
				TotalPaise:     lineTotal,
			})
		}

		phone := strings.TrimSpace(input.Phone)
		billing := input.ShippingAddress
		if input.BillingAddress != nil {
			billing = *input.BillingAddress
		}
		order := &models.Order{
			GuestEmail:      &email,
			AmountPaise:     total,
			Currency:        enums.CurrencyINR,
			ShippingAddress: input.ShippingAddress,
			BillingAddress:  &billing,
		}
		if phone != "" {
			order.GuestPhone = &phone
		}
		order, err = repo.Create(ctx, order)
		if err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return err
		}

		gwOrder, err := s.gateway.CreateOrder(ctx, razorpay.OrderCreateParams{
			AmountPaise: total,
			Currency:    string(enums.CurrencyINR),
			Receipt:     order.ID.String(),
			Notes:       map[string]any{"order_id": order.ID.String()},
		})
		if err != nil {
			return err
		}
		if err := repo.UpdateColumns(ctx, order.ID, map[string]any{
			"razorpay_order_id": gwOrder.ID,
		}); err != nil {
			return err
		}

		result = CheckoutResult{
			OrderID:         order.ID,
			RazorpayOrderID: gwOrder.ID,
			RazorpayKeyID:   s.gateway.KeyID(),
			AmountPaise:     total,
			Currency:        enums.CurrencyINR,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyPayment checks the gateway signature and marks the order paid. A
// replayed handshake for an already-paid order succeeds without side effects;
// a signature mismatch never touches the order.
func (s *service) VerifyPayment(ctx context.Context, input VerifyInput) (*orders.StatusProjection, error) {
	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.RazorpayOrderID == nil || *order.RazorpayOrderID != input.RazorpayOrderID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to this order")
	}
	if !s.gateway.VerifyPaymentSignature(input.RazorpayOrderID, input.RazorpayPaymentID, input.Signature) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment signature verification failed")
	}

	change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventPaymentCaptured)
	if err != nil {
		// replayed handshake: the order is already paid with this payment
		if order.PaymentStatus == enums.PaymentStatusPaid &&
			order.RazorpayPaymentID != nil && *order.RazorpayPaymentID == input.RazorpayPaymentID {
			projection := orders.Project(order)
			return &projection, nil
		}
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, err := repo.ApplyChange(ctx, order.ID, change, map[string]any{
			"razorpay_payment_id": input.RazorpayPaymentID,
		})
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, payment not recorded")
		}
		return s.notify.Enqueue(ctx, tx, enums.NotificationOrderConfirmed, order.ID, notifications.Payload{
			Recipient:   recipientOf(order),
			AmountPaise: order.AmountPaise,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.flush != nil {
		s.flush.Flush(context.WithoutCancel(ctx))
	}

	fresh, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	projection := orders.Project(fresh)
	return &projection, nil
}

func recipientOf(order *models.Order) string {
	if order.GuestEmail != nil {
		return *order.GuestEmail
	}
	return ""
}
