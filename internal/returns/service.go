package returns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/inventory"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/lifecycle"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/notifications"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/razorpay"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/shiprocket"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type refundGateway interface {
	CreateRefund(ctx context.Context, paymentID string, amountPaise int64, notes map[string]any) (*razorpay.RefundResult, error)
}

type courier interface {
	CreateReturnShipment(ctx context.Context, params shiprocket.CreateShipmentParams) (*shiprocket.Shipment, error)
	GenerateManifest(ctx context.Context, shipmentIDs []int64) (string, error)
	SchedulePickup(ctx context.Context, shipmentID int64) error
}

type photoStore interface {
	MaxPhotoCount() int
	ValidatePhoto(contentType string, size int64) error
	UploadInspectionPhoto(ctx context.Context, orderID string, body io.Reader, contentType string, size int64) (string, error)
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, eventType enums.NotificationEventType, orderID uuid.UUID, payload notifications.Payload) error
}

type flusher interface {
	Flush(ctx context.Context)
}

// RequestInput is the customer's return request.
type RequestInput struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	Email   string    `json:"email" validate:"required,email"`
	Reason  string    `json:"reason" validate:"required,min=5,max=500"`
}

// PhotoUpload is one inspection photo streamed from the admin's request.
type PhotoUpload struct {
	Body        io.Reader
	ContentType string
	Size        int64
}

// InspectionInput is the admin's verdict on returned goods.
type InspectionInput struct {
	OrderID        uuid.UUID
	DeductionPaise int64
	Note           string
	Photos         []PhotoUpload
}

// ManifestResult reports a pickup-manifest batch, including the orders that
// could not be included.
type ManifestResult struct {
	BatchID     string      `json:"batch_id"`
	ManifestURL string      `json:"manifest_url"`
	OrderIDs    []uuid.UUID `json:"order_ids"`
	Skipped     []string    `json:"skipped,omitempty"`
}

// Service runs the return lifecycle: customer request, reverse pickup,
// inspection and refund, and the accounting credit note.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*orders.StatusProjection, error)
	InspectAndRefund(ctx context.Context, input InspectionInput) (*orders.StatusProjection, error)
	ManifestBatch(ctx context.Context, orderIDs []uuid.UUID) (*ManifestResult, error)
}

type service struct {
	repo           orders.Repository
	tx             txRunner
	gateway        refundGateway
	courier        courier
	photos         photoStore
	notify         notifier
	flush          flusher
	logg           *logger.Logger
	pickupLocation string
	windowDays     int
}

// NewService builds the returns service. pickupLocation is the Shiprocket
// pickup-location nickname returned goods are routed back to; windowDays is
// how long after delivery a return may still be requested, 0 meaning no
// limit.
func NewService(repo orders.Repository, tx txRunner, gateway refundGateway, courier courier, photos photoStore, notify notifier, flush flusher, logg *logger.Logger, pickupLocation string, windowDays int) (Service, error) {
	if repo == nil || tx == nil || gateway == nil || courier == nil || notify == nil {
		return nil, fmt.Errorf("returns service is missing a required dependency")
	}
	return &service{
		repo:           repo,
		tx:             tx,
		gateway:        gateway,
		courier:        courier,
		photos:         photos,
		notify:         notify,
		flush:          flush,
		logg:           logg,
		pickupLocation: pickupLocation,
		windowDays:     windowDays,
	}, nil
}

// Request opens a return for a delivered order still inside the return
// window and books the reverse pickup.
// The return sticks even when the courier booking fails; the pickup is then
// booked later through the manifest flow.
func (s *service) Request(ctx context.Context, input RequestInput) (*orders.StatusProjection, error) {
	order, err := s.loadOwnedOrder(ctx, input.OrderID, input.Email)
	if err != nil {
		return nil, err
	}
	if s.windowDays > 0 && order.DeliveredAt != nil &&
		time.Since(*order.DeliveredAt) > time.Duration(s.windowDays)*24*time.Hour {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("the %d-day return window for this order has closed", s.windowDays))
	}

	change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventReturnRequested)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).ApplyChange(ctx, order.ID, change, map[string]any{
			"return_reason": strings.TrimSpace(input.Reason),
		})
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, return not recorded")
		}
		return s.notify.Enqueue(ctx, tx, enums.NotificationReturnRequested, order.ID, notifications.Payload{
			Recipient: recipientOf(order),
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.bookReversePickup(ctx, order); err != nil && s.logg != nil {
		s.logg.Error(ctx, "reverse pickup booking failed", err)
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

// bookReversePickup registers the return with the courier and records the
// reverse AWB. The lifecycle advance is conditional on the current snapshot,
// so a racing tracking webhook cannot be overwritten.
func (s *service) bookReversePickup(ctx context.Context, order *models.Order) error {
	shipment, err := s.courier.CreateReturnShipment(ctx, returnShipmentParams(order, s.pickupLocation))
	if err != nil {
		return err
	}

	fresh, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	change, err := lifecycle.Attempt(orders.SnapshotOf(fresh), lifecycle.EventReturnPickupScheduled)
	if err != nil {
		return err
	}
	extra := map[string]any{
		"return_shiprocket_id": shipment.OrderID,
	}
	if shipment.AWB != "" {
		extra["return_pickup_awb"] = shipment.AWB
	}
	_, err = s.repo.ApplyChange(ctx, order.ID, change, extra)
	return err
}

// InspectAndRefund settles an inspected return: photos are stored first, the
// deduction is bounded against the order total, and the credit note is issued
// only after the gateway accepts the refund. A gateway failure leaves the
// return retryable with the same input.
func (s *service) InspectAndRefund(ctx context.Context, input InspectionInput) (*orders.StatusProjection, error) {
	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	retrying := order.ReturnStatus == enums.ReturnStatusRefundInitiated
	if order.ReturnStatus != enums.ReturnStatusDelivered && !retrying {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("return must be delivered back before inspection, currently %q", order.ReturnStatus))
	}

	refundPaise, err := boundedRefund(order.AmountPaise, input.DeductionPaise)
	if err != nil {
		return nil, err
	}

	photoKeys, err := s.storePhotos(ctx, order.ID, input.Photos)
	if err != nil {
		return nil, err
	}

	inspection := map[string]any{
		"deduction_paise": input.DeductionPaise,
	}
	if note := strings.TrimSpace(input.Note); note != "" {
		inspection["inspection_note"] = note
	}
	if len(photoKeys) > 0 {
		inspection["inspection_photo_keys"] = types.StringSlice(photoKeys)
	}

	if !retrying {
		change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventReturnRefundInitiated)
		if err != nil {
			return nil, err
		}
		applied, err := s.repo.ApplyChange(ctx, order.ID, change, inspection)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, inspection not recorded")
		}
	} else if err := s.repo.UpdateColumns(ctx, order.ID, inspection); err != nil {
		return nil, err
	}

	order, err = s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	if order.RazorpayPaymentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "paid order has no payment reference")
	}

	refund, refundErr := s.gateway.CreateRefund(ctx, *order.RazorpayPaymentID, refundPaise, map[string]any{
		"order_id": order.ID.String(),
		"kind":     "return",
	})
	if refundErr != nil {
		if change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventReturnRefundFailed); err == nil {
			_, _ = s.repo.ApplyChange(ctx, order.ID, change, map[string]any{
				"refund_error_description": refundErr.Error(),
			})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, refundErr, "initiate return refund")
	}

	var settled bool
	switch refund.Status {
	case "processed":
		settled = true
	case "created", "pending":
		// the gateway accepted the refund and will confirm over the webhook
	default:
		if change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventReturnRefundFailed); err == nil {
			_, _ = s.repo.ApplyChange(ctx, order.ID, change, map[string]any{
				"razorpay_refund_id":       refund.ID,
				"refund_error_description": fmt.Sprintf("gateway returned refund status %q", refund.Status),
			})
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("gateway did not accept the refund, status %q", refund.Status))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if !settled {
			return repo.UpdateColumns(ctx, order.ID, map[string]any{
				"razorpay_refund_id": refund.ID,
			})
		}

		note, err := IssueCreditNote(ctx, tx, order.ID, order.AmountPaise, input.DeductionPaise, refundPaise, derefString(order.ReturnReason), time.Now().UTC())
		if err != nil {
			return err
		}

		change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventReturnRefundCompleted)
		if err != nil {
			return err
		}
		applied, err := repo.ApplyChange(ctx, order.ID, change, map[string]any{
			"razorpay_refund_id": refund.ID,
			"credit_note_number": note.Number,
		})
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, refund not recorded")
		}
		if err := inventory.Restore(ctx, tx, restockLines(order.Items)); err != nil {
			return err
		}
		return s.notify.Enqueue(ctx, tx, enums.NotificationReturnRefundCompleted, order.ID, notifications.Payload{
			Recipient:   recipientOf(order),
			RefundPaise: refundPaise,
			CreditNote:  note.Number,
		})
	})
	if err != nil {
		return nil, err
	}

	if settled && s.flush != nil {
		s.flush.Flush(context.WithoutCancel(ctx))
	}

	fresh, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	projection := orders.Project(fresh)
	return &projection, nil
}

// ManifestBatch books reverse pickups and generates one manifest for the
// given returns. Orders that are not awaiting pickup are reported back by id
// instead of failing the whole batch.
func (s *service) ManifestBatch(ctx context.Context, orderIDs []uuid.UUID) (*ManifestResult, error) {
	if len(orderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order id is required")
	}

	rows, err := s.repo.FindManyByIDs(ctx, orderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load orders")
	}
	found := make(map[uuid.UUID]*models.Order, len(rows))
	for i := range rows {
		found[rows[i].ID] = &rows[i]
	}

	var (
		shipmentIDs []int64
		included    []uuid.UUID
		skipped     []string
		problems    error
	)
	for _, id := range orderIDs {
		order, ok := found[id]
		if !ok {
			skipped = append(skipped, id.String())
			problems = multierr.Append(problems, fmt.Errorf("order %s: not found", id))
			continue
		}
		if order.ReturnStatus != enums.ReturnStatusPickupScheduled || order.ReturnShiprocketID == nil {
			skipped = append(skipped, id.String())
			problems = multierr.Append(problems, fmt.Errorf("order %s: return not awaiting pickup (%s)", id, order.ReturnStatus))
			continue
		}
		shipmentIDs = append(shipmentIDs, *order.ReturnShiprocketID)
		included = append(included, id)
	}
	if len(shipmentIDs) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, problems, "no orders eligible for manifest")
	}

	for _, shipmentID := range shipmentIDs {
		if err := s.courier.SchedulePickup(ctx, shipmentID); err != nil {
			problems = multierr.Append(problems, fmt.Errorf("shipment %d: schedule pickup: %w", shipmentID, err))
		}
	}

	manifestURL, err := s.courier.GenerateManifest(ctx, shipmentIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate manifest")
	}

	batchID := uuid.NewString()
	for _, id := range included {
		if err := s.repo.UpdateColumns(ctx, id, map[string]any{"manifest_batch_id": batchID}); err != nil {
			problems = multierr.Append(problems, fmt.Errorf("order %s: record manifest batch: %w", id, err))
		}
	}
	if problems != nil && s.logg != nil {
		s.logg.Error(ctx, "manifest batch completed with problems", problems)
	}

	return &ManifestResult{
		BatchID:     batchID,
		ManifestURL: manifestURL,
		OrderIDs:    included,
		Skipped:     skipped,
	}, nil
}

func (s *service) storePhotos(ctx context.Context, orderID uuid.UUID, photos []PhotoUpload) ([]string, error) {
	if len(photos) == 0 {
		return nil, nil
	}
	if s.photos == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "photo storage not configured")
	}
	if limit := s.photos.MaxPhotoCount(); limit > 0 && len(photos) > limit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("at most %d inspection photos are allowed", limit))
	}
	for _, photo := range photos {
		if err := s.photos.ValidatePhoto(photo.ContentType, photo.Size); err != nil {
			return nil, err
		}
	}
	keys := make([]string, 0, len(photos))
	for _, photo := range photos {
		key, err := s.photos.UploadInspectionPhoto(ctx, orderID.String(), photo.Body, photo.ContentType, photo.Size)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store inspection photo")
		}
		keys = append(keys, key)
	}
	return keys, nil
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

// boundedRefund computes amount minus deduction with paise-exact arithmetic
// and rejects deductions outside [0, amount].
func boundedRefund(amountPaise, deductionPaise int64) (int64, error) {
	amount := decimal.NewFromInt(amountPaise)
	deduction := decimal.NewFromInt(deductionPaise)
	if deduction.IsNegative() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "deduction cannot be negative")
	}
	if deduction.GreaterThan(amount) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("deduction exceeds the refundable amount of %s paise", amount))
	}
	return amount.Sub(deduction).IntPart(), nil
}

func returnShipmentParams(order *models.Order, pickupLocation string) shiprocket.CreateShipmentParams {
	items := make([]shiprocket.ShipmentItem, 0, len(order.Items))
	totalUnits := 0
	for _, item := range order.Items {
		items = append(items, shiprocket.ShipmentItem{
			Name:         item.Name,
			SKU:          item.Name,
			Units:        item.Qty,
			SellingPrice: item.UnitPricePaise,
		})
		totalUnits += item.Qty
	}
	addr := order.ShippingAddress
	return shiprocket.CreateShipmentParams{
		OrderRef:       "RET-" + order.ID.String(),
		OrderDate:      time.Now().UTC(),
		PickupLocation: pickupLocation,
		Consignee: shiprocket.ShipmentAddress{
			Name:    addr.Name,
			Phone:   addr.Phone,
			Line1:   addr.Line1,
			Line2:   addr.Line2,
			City:    addr.City,
			State:   addr.State,
			Pincode: addr.Pincode,
			Country: "India",
			Email:   derefString(order.GuestEmail),
		},
		Items:         items,
		SubTotalPaise: order.AmountPaise,
		WeightKg:      0.5 * float64(totalUnits),
	}
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

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
