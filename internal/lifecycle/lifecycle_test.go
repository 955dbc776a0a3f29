package lifecycle

import (
	"testing"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
)

func freshOrder() Snapshot {
	return Snapshot{
		Payment:      enums.PaymentStatusInitiated,
		Order:        enums.OrderStatusCheckedOut,
		Shipment:     enums.ShipmentStatusNotShipped,
		Cancellation: enums.CancellationStatusNone,
		Refund:       enums.RefundStatusNone,
		Return:       enums.ReturnStatusNotRequested,
	}
}

func paidOrder() Snapshot {
	s := freshOrder()
	s.Payment = enums.PaymentStatusPaid
	s.Order = enums.OrderStatusConfirmed
	return s
}

func deliveredOrder() Snapshot {
	s := paidOrder()
	s.Order = enums.OrderStatusDelivered
	return s
}

func TestPaymentCapturedConfirmsOrder(t *testing.T) {
	change, err := Attempt(freshOrder(), EventPaymentCaptured)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Payment == nil || *change.Payment != enums.PaymentStatusPaid {
		t.Fatalf("expected payment paid, got %+v", change.Payment)
	}
	if change.Order == nil || *change.Order != enums.OrderStatusConfirmed {
		t.Fatalf("expected order confirmed, got %+v", change.Order)
	}
	if len(change.Timestamps) != 2 {
		t.Fatalf("expected paid_at and confirmed_at stamps, got %v", change.Timestamps)
	}
}

func TestPaymentCapturedRejectsDoubleCapture(t *testing.T) {
	s := paidOrder()
	_, err := Attempt(s, EventPaymentCaptured)
	if err == nil {
		t.Fatalf("expected precondition error for already-paid order")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCancellationRequiresPaidOrder(t *testing.T) {
	if _, err := Attempt(freshOrder(), EventCancellationRequested); err == nil {
		t.Fatalf("unpaid order must not accept a cancellation request")
	}

	change, err := Attempt(paidOrder(), EventCancellationRequested)
	if err != nil {
		t.Fatalf("paid order should accept cancellation: %v", err)
	}
	if change.Cancellation == nil || *change.Cancellation != enums.CancellationStatusRequested {
		t.Fatalf("expected cancellation requested, got %+v", change.Cancellation)
	}
}

func TestCancellationRejectedAfterDelivery(t *testing.T) {
	if _, err := Attempt(deliveredOrder(), EventCancellationRequested); err == nil {
		t.Fatalf("delivered order must not accept a cancellation request")
	}
}

func TestRefundCompletedSettlesEverything(t *testing.T) {
	s := paidOrder()
	s.Cancellation = enums.CancellationStatusRequested
	s.Order = enums.OrderStatusCancellationRequested

	change, err := Attempt(s, EventRefundCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *change.Payment != enums.PaymentStatusRefunded {
		t.Fatalf("expected payment refunded")
	}
	if *change.Order != enums.OrderStatusCancelled {
		t.Fatalf("expected order cancelled")
	}
	if *change.Cancellation != enums.CancellationStatusCancelled {
		t.Fatalf("expected cancellation settled")
	}
	if *change.Refund != enums.RefundStatusCompleted {
		t.Fatalf("expected refund completed")
	}
}

func TestRefundCompletedRequiresPaid(t *testing.T) {
	s := freshOrder()
	if _, err := Attempt(s, EventRefundCompleted); err == nil {
		t.Fatalf("refund must require a paid order")
	}
}

func TestReturnProgression(t *testing.T) {
	s := deliveredOrder()

	change, err := Attempt(s, EventReturnRequested)
	if err != nil {
		t.Fatalf("return request: %v", err)
	}
	s.Return = *change.Return

	change, err = Attempt(s, EventReturnPickupScheduled)
	if err != nil {
		t.Fatalf("pickup schedule: %v", err)
	}
	s.Return = *change.Return

	change, err = Attempt(s, EventReturnInTransit)
	if err != nil {
		t.Fatalf("in transit: %v", err)
	}
	s.Return = *change.Return

	change, err = Attempt(s, EventReturnDelivered)
	if err != nil {
		t.Fatalf("return delivered: %v", err)
	}
	s.Return = *change.Return

	if s.Return != enums.ReturnStatusDelivered {
		t.Fatalf("expected RETURN_DELIVERED, got %s", s.Return)
	}
}

func TestReturnRefundGatedOnDelivery(t *testing.T) {
	s := deliveredOrder()
	s.Return = enums.ReturnStatusInTransit
	if _, err := Attempt(s, EventReturnRefundInitiated); err == nil {
		t.Fatalf("inspection refund must require RETURN_DELIVERED")
	}

	s.Return = enums.ReturnStatusDelivered
	change, err := Attempt(s, EventReturnRefundInitiated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *change.Return != enums.ReturnStatusRefundInitiated {
		t.Fatalf("expected refund initiated marker on return dimension")
	}
}

func TestReturnRefundFailureKeepsRetryableState(t *testing.T) {
	s := deliveredOrder()
	s.Return = enums.ReturnStatusRefundInitiated

	change, err := Attempt(s, EventReturnRefundFailed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Return != nil {
		t.Fatalf("return dimension must stay put on refund failure")
	}
	if *change.Refund != enums.RefundStatusFailed {
		t.Fatalf("expected refund failed marker")
	}

	// retry path is legal from the same snapshot
	if _, err := Attempt(s, EventReturnRefundCompleted); err != nil {
		t.Fatalf("retry after failure should be legal: %v", err)
	}
}

func TestUnknownEventRejected(t *testing.T) {
	if _, err := Attempt(freshOrder(), Event("order.teleported")); err == nil {
		t.Fatalf("expected error for unknown event")
	}
}

func TestChangeCarriesPreconditions(t *testing.T) {
	change, err := Attempt(paidOrder(), EventCancellationRequested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(change.RequirePayment) == 0 || len(change.RequireCancellation) == 0 {
		t.Fatalf("change must carry preconditions for the conditional update")
	}
}

func TestShipmentBookingFlow(t *testing.T) {
	change, err := Attempt(paidOrder(), EventShipmentBooked)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Shipment == nil || *change.Shipment != enums.ShipmentStatusPickupScheduled {
		t.Fatalf("expected shipment pickup scheduled, got %+v", change.Shipment)
	}
	if len(change.RequireShipment) == 0 {
		t.Fatal("booking must carry the shipment precondition into the update")
	}
}

func TestShipmentBookingRejectsAlreadyShipped(t *testing.T) {
	s := paidOrder()
	s.Shipment = enums.ShipmentStatusPickupScheduled
	_, err := Attempt(s, EventShipmentBooked)
	if err == nil {
		t.Fatal("expected precondition error for already-booked shipment")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestShipmentBookingRejectsCancellingOrder(t *testing.T) {
	s := paidOrder()
	s.Order = enums.OrderStatusCancellationRequested
	s.Cancellation = enums.CancellationStatusRequested
	_, err := Attempt(s, EventShipmentBooked)
	if err == nil {
		t.Fatal("expected precondition error for an order being cancelled")
	}
}
