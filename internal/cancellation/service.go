package cancellation

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/inventory"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/lifecycle"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/notifications"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/mailer"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/razorpay"
)

// OTPTTL bounds how long a cancellation code stays redeemable.
const OTPTTL = 10 * time.Minute

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type otpStore interface {
	StoreOTP(ctx context.Context, orderID, code string, ttl time.Duration) error
	GetOTP(ctx context.Context, orderID string) (string, error)
	ConsumeOTP(ctx context.Context, orderID string) error
}

type refundGateway interface {
	CreateRefund(ctx context.Context, paymentID string, amountPaise int64, notes map[string]any) (*razorpay.RefundResult, error)
}

type courier interface {
	CancelShipment(ctx context.Context, gatewayOrderID int64) error
}

type sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.NotificationEventType, orderID uuid.UUID, payload notifications.Payload) error
}

type flusher interface {
	Flush(ctx context.Context)
}

// ConfirmInput carries the customer's OTP redemption.
type ConfirmInput struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	Email   string    `json:"email" validate:"required,email"`
	Code    string    `json:"code" validate:"required,len=6,numeric"`
	Reason  string    `json:"reason" validate:"omitempty,max=500"`
}

// Service runs the customer cancellation flow and the admin retry for stuck
// cancellations.
type Service interface {
	RequestOTP(ctx context.Context, orderID uuid.UUID, email string) error
	Confirm(ctx context.Context, input ConfirmInput) (*orders.StatusProjection, error)
	AdminRetry(ctx context.Context, orderID uuid.UUID) (*orders.StatusProjection, error)
}

type service struct {
	repo    orders.Repository
	tx      txRunner
	otp     otpStore
	gateway refundGateway
	courier courier
	mail    sender
	notify  notifier
	flush   flusher
	logg    *logger.Logger
}

// NewService builds the cancellation service.
func NewService(repo orders.Repository, tx txRunner, otp otpStore, gateway refundGateway, courier courier, mail sender, notify notifier, flush flusher, logg *logger.Logger) (Service, error) {
	if repo == nil || tx == nil || otp == nil || gateway == nil || mail == nil || notify == nil {
		return nil, fmt.Errorf("cancellation service is missing a required dependency")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		otp:     otp,
		gateway: gateway,
		courier: courier,
		mail:    mail,
		notify:  notify,
		flush:   flush,
		logg:    logg,
	}, nil
}

// RequestOTP checks the order is cancellable, then issues a 6-digit code to
// the order's email. Re-requesting overwrites the previous code.
func (s *service) RequestOTP(ctx context.Context, orderID uuid.UUID, email string) error {
	order, err := s.loadOwnedOrder(ctx, orderID, email)
	if err != nil {
		return err
	}
	if _, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventCancellationRequested); err != nil {
		return err
	}

	code, err := generateOTP()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate cancellation code")
	}
	if err := s.otp.StoreOTP(ctx, orderID.String(), code, OTPTTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store cancellation code")
	}

	return s.mail.Send(ctx, mailer.Message{
		To:      *order.GuestEmail,
		Subject: "Confirm your order cancellation",
		HTMLBody: fmt.Sprintf(
			"<p>Your cancellation code for order <b>%s</b> is <b>%s</b>. It expires in %d minutes.</p>",
			orderID, code, int(OTPTTL.Minutes())),
	})
}

// Confirm redeems the OTP and flags the order for cancellation, then makes a
// best-effort attempt to cancel the shipment and move the money back. The
// cancellation request itself sticks even when the courier or the gateway is
// down; the admin retry finishes the job later.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*orders.StatusProjection, error) {
	order, err := s.loadOwnedOrder(ctx, input.OrderID, input.Email)
	if err != nil {
		return nil, err
	}

	stored, err := s.otp.GetOTP(ctx, input.OrderID.String())
	if err != nil || stored == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired cancellation code")
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(input.Code))) != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired cancellation code")
	}

	change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventCancellationRequested)
	if err != nil {
		return nil, err
	}

	extra := map[string]any{}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		extra["cancellation_reason"] = reason
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).ApplyChange(ctx, order.ID, change, extra)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, cancellation not recorded")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.otp.ConsumeOTP(ctx, input.OrderID.String()); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "failed to consume cancellation code")
	}

	s.settle(ctx, order.ID)

	fresh, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	projection := orders.Project(fresh)
	return &projection, nil
}

// AdminRetry re-drives a cancellation whose shipment cancel or refund failed.
func (s *service) AdminRetry(ctx context.Context, orderID uuid.UUID) (*orders.StatusProjection, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.OrderStatus != enums.OrderStatusCancellationRequested {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is not awaiting cancellation, currently %q", order.OrderStatus))
	}

	if err := s.settleErr(ctx, orderID); err != nil {
		return nil, err
	}

	fresh, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	projection := orders.Project(fresh)
	return &projection, nil
}

// settle runs the settlement steps and logs instead of failing; the customer
// confirmation path must not surface courier or gateway hiccups.
func (s *service) settle(ctx context.Context, orderID uuid.UUID) {
	if err := s.settleErr(ctx, orderID); err != nil && s.logg != nil {
		s.logg.Error(ctx, "cancellation settlement incomplete", err)
	}
}

// settleErr cancels the shipment if one exists, then refunds the payment.
// Every step re-reads the order row so concurrent webhooks and retries see
// each other's progress.
func (s *service) settleErr(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	if order.ShiprocketOrderID != nil && !order.ShipmentStatus.IsTerminalCancellation() {
		if s.courier == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "courier client not configured")
		}
		retryingCancel := order.ShipmentStatus.NeedsCancellationRetry()
		courierErr := s.courier.CancelShipment(ctx, *order.ShiprocketOrderID)
		event := lifecycle.EventShipmentCancelled
		if courierErr != nil {
			event = lifecycle.EventShipmentCancelFailed
		}
		change, err := lifecycle.Attempt(orders.SnapshotOf(order), event)
		if err == nil {
			if _, err := s.repo.ApplyChange(ctx, order.ID, change, nil); err != nil {
				return err
			}
		}
		if courierErr != nil {
			if !retryingCancel {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, courierErr, "cancel shipment")
			}
			// the courier already rejected this cancellation once; the
			// refund must not stay hostage to a shipment we cannot recall
			if s.logg != nil {
				s.logg.Warn(ctx, "courier rejected the cancellation again, refunding anyway")
			}
		}
		order, err = s.repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
	}

	if order.PaymentStatus != enums.PaymentStatusPaid || order.RefundStatus == enums.RefundStatusCompleted {
		return nil
	}
	if order.ShiprocketOrderID != nil &&
		!order.ShipmentStatus.IsTerminalCancellation() && !order.ShipmentStatus.NeedsCancellationRetry() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "shipment must be cancelled before the refund")
	}
	if order.RazorpayPaymentID == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "paid order has no payment reference")
	}

	refund, refundErr := s.gateway.CreateRefund(ctx, *order.RazorpayPaymentID, order.AmountPaise, map[string]any{
		"order_id": order.ID.String(),
		"kind":     "cancellation",
	})
	if refundErr != nil {
		change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventRefundFailed)
		if err == nil {
			_, _ = s.repo.ApplyChange(ctx, order.ID, change, map[string]any{
				"refund_error_description": refundErr.Error(),
			})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, refundErr, "initiate refund")
	}

	event := lifecycle.EventRefundInitiated
	var settled bool
	switch refund.Status {
	case "processed":
		event = lifecycle.EventRefundCompleted
		settled = true
	case "created", "pending":
		// confirmation arrives over the refund webhook
	default:
		if change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventRefundFailed); err == nil {
			_, _ = s.repo.ApplyChange(ctx, order.ID, change, map[string]any{
				"razorpay_refund_id":       refund.ID,
				"refund_error_description": fmt.Sprintf("gateway returned refund status %q", refund.Status),
			})
		}
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("gateway did not accept the refund, status %q", refund.Status))
	}
	change, err := lifecycle.Attempt(orders.SnapshotOf(order), event)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).ApplyChange(ctx, order.ID, change, map[string]any{
			"razorpay_refund_id": refund.ID,
		})
		if err != nil {
			return err
		}
		if !applied || !settled {
			return nil
		}
		if err := inventory.Restore(ctx, tx, restockLines(order.Items)); err != nil {
			return err
		}
		return s.notify.Enqueue(ctx, tx, enums.NotificationOrderCancelled, order.ID, notifications.Payload{
			Recipient:   recipientOf(order),
			RefundPaise: order.AmountPaise,
		})
	})
	if err != nil {
		return err
	}

	if settled && s.flush != nil {
		s.flush.Flush(context.WithoutCancel(ctx))
	}
	return nil
}

func (s *service) loadOwnedOrder(ctx context.Context, orderID uuid.UUID, email string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	proof := strings.ToLower(strings.TrimSpace(email))
	if proof == "" || order.GuestEmail == nil || strings.ToLower(*order.GuestEmail) != proof {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func restockLines(items []models.OrderItem) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		lines = append(lines, inventory.Line{ProductID: *item.ProductID, Qty: item.Qty})
	}
	return lines
}

func recipientOf(order *models.Order) string {
	if order.GuestEmail != nil {
		return *order.GuestEmail
	}
	return ""
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
