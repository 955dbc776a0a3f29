package shipping

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/internal/lifecycle"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/shiprocket"
)

type courier interface {
	CreateShipment(ctx context.Context, params shiprocket.CreateShipmentParams) (*shiprocket.Shipment, error)
	SchedulePickup(ctx context.Context, shipmentID int64) error
	GenerateLabel(ctx context.Context, shipmentID int64) (string, error)
	Serviceability(ctx context.Context, pickupPincode, deliveryPincode string, weightKg float64) ([]shiprocket.CourierOption, error)
	Track(ctx context.Context, awb string) ([]shiprocket.TrackingEvent, error)
}

// Service exposes the ops-side shipping actions for paid orders.
type Service interface {
	Ship(ctx context.Context, orderID uuid.UUID) (*orders.StatusProjection, error)
	SchedulePickup(ctx context.Context, orderID uuid.UUID) (*orders.StatusProjection, error)
	Label(ctx context.Context, orderID uuid.UUID) (string, error)
	Serviceability(ctx context.Context, deliveryPincode string, weightKg float64) ([]shiprocket.CourierOption, error)
	Track(ctx context.Context, orderID uuid.UUID) ([]shiprocket.TrackingEvent, error)
}

type service struct {
	repo           orders.Repository
	courier        courier
	logg           *logger.Logger
	pickupLocation string
	pickupPincode  string
}

// NewService wires the shipping service. pickupLocation is the warehouse
// nickname registered with the courier aggregator; pickupPincode is the
// warehouse pincode used for serviceability quotes.
func NewService(repo orders.Repository, c courier, logg *logger.Logger, pickupLocation, pickupPincode string) (Service, error) {
	if repo == nil || c == nil || logg == nil {
		return nil, errors.New("shipping: missing dependency")
	}
	if strings.TrimSpace(pickupLocation) == "" || strings.TrimSpace(pickupPincode) == "" {
		return nil, errors.New("shipping: pickup location and pincode required")
	}
	return &service{
		repo:           repo,
		courier:        c,
		logg:           logg,
		pickupLocation: pickupLocation,
		pickupPincode:  pickupPincode,
	}, nil
}

// Ship books the forward shipment for a paid, confirmed order. The gateway
// call happens before any status write, so a booking failure leaves the order
// untouched and the action retryable.
func (s *service) Ship(ctx context.Context, orderID uuid.UUID) (*orders.StatusProjection, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ShiprocketOrderID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipment already booked for this order")
	}

	change, err := lifecycle.Attempt(orders.SnapshotOf(order), lifecycle.EventShipmentBooked)
	if err != nil {
		return nil, err
	}

	shipment, err := s.courier.CreateShipment(ctx, forwardShipmentParams(order, s.pickupLocation))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
	}

	extra := map[string]any{
		"shiprocket_order_id":    shipment.OrderID,
		"shiprocket_shipment_id": shipment.ShipmentID,
	}
	if shipment.AWB != "" {
		extra["awb"] = shipment.AWB
	}
	ok, err := s.repo.ApplyChange(ctx, order.ID, change, extra)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist shipment booking")
	}
	if !ok {
		// Another writer moved the order between our read and the update.
		// The gateway order exists but is not recorded; surface it loudly.
		ctx = s.logg.WithFields(ctx, map[string]any{
			"order_id":            order.ID.String(),
			"shiprocket_order_id": shipment.OrderID,
		})
		s.logg.Error(ctx, "shipping.booking_lost_race", nil)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while booking shipment")
	}

	return s.projection(ctx, order.ID)
}

// SchedulePickup re-requests courier pickup for an already booked shipment.
// Booking normally triggers pickup assignment; this is the manual retry when
// the aggregator did not pick one up.
func (s *service) SchedulePickup(ctx context.Context, orderID uuid.UUID) (*orders.StatusProjection, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ShiprocketShipmentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no shipment booked for this order")
	}

	if err := s.courier.SchedulePickup(ctx, *order.ShiprocketShipmentID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "schedule pickup")
	}

	return s.projection(ctx, order.ID)
}

// Label fetches the shipping label PDF URL for a booked shipment.
func (s *service) Label(ctx context.Context, orderID uuid.UUID) (string, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.ShiprocketShipmentID == nil {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "no shipment booked for this order")
	}

	url, err := s.courier.GenerateLabel(ctx, *order.ShiprocketShipmentID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate label")
	}
	return url, nil
}

// Track returns the carrier scan history for an order's forward shipment.
func (s *service) Track(ctx context.Context, orderID uuid.UUID) ([]shiprocket.TrackingEvent, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.AWB == nil || *order.AWB == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no airway bill assigned to this order")
	}

	events, err := s.courier.Track(ctx, *order.AWB)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track shipment")
	}
	return events, nil
}

// Serviceability quotes couriers for a delivery pincode from the configured
// warehouse.
func (s *service) Serviceability(ctx context.Context, deliveryPincode string, weightKg float64) ([]shiprocket.CourierOption, error) {
	deliveryPincode = strings.TrimSpace(deliveryPincode)
	if len(deliveryPincode) != 6 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery pincode must be 6 digits")
	}
	if weightKg <= 0 {
		weightKg = 0.5
	}

	options, err := s.courier.Serviceability(ctx, s.pickupPincode, deliveryPincode, weightKg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "serviceability")
	}
	return options, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) projection(ctx context.Context, orderID uuid.UUID) (*orders.StatusProjection, error) {
	fresh, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	p := orders.Project(fresh)
	return &p, nil
}

func forwardShipmentParams(order *models.Order, pickupLocation string) shiprocket.CreateShipmentParams {
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
	var email string
	if order.GuestEmail != nil {
		email = *order.GuestEmail
	}
	return shiprocket.CreateShipmentParams{
		OrderRef:       order.ID.String(),
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
			Email:   email,
		},
		Items:         items,
		SubTotalPaise: order.AmountPaise,
		WeightKg:      0.5 * float64(totalUnits),
	}
}
