package lifecycle

import (
	"fmt"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
)

// Event names a lifecycle occurrence that may advance an order.
type Event string

const (
	EventPaymentCaptured       Event = "payment.captured"
	EventPaymentFailed         Event = "payment.failed"
	EventShipmentBooked        Event = "shipment.booked"
	EventShipmentPickedUp      Event = "shipment.picked_up"
	EventShipmentDelivered     Event = "shipment.delivered"
	EventCancellationRequested Event = "cancellation.requested"
	EventShipmentCancelled     Event = "shipment.cancelled"
	EventShipmentCancelFailed  Event = "shipment.cancel_failed"
	EventRefundInitiated       Event = "refund.initiated"
	EventRefundCompleted       Event = "refund.completed"
	EventRefundFailed          Event = "refund.failed"
	EventReturnRequested       Event = "return.requested"
	EventReturnPickupScheduled Event = "return.pickup_scheduled"
	EventReturnInTransit       Event = "return.in_transit"
	EventReturnDelivered       Event = "return.delivered"
	EventReturnRefundInitiated Event = "return.refund_initiated"
	EventReturnRefundCompleted Event = "return.refund_completed"
	EventReturnRefundFailed    Event = "return.refund_failed"
	EventReturnCancelled       Event = "return.cancelled"
)

// Snapshot is a point-in-time read of every status dimension on one order.
type Snapshot struct {
	Payment      enums.PaymentStatus
	Order        enums.OrderStatus
	Shipment     enums.ShipmentStatus
	Cancellation enums.CancellationStatus
	Refund       enums.RefundStatus
	Return       enums.ReturnStatus
}

// Change is the outcome of a legal transition: the dimensions to set (nil =
// untouched), the timestamp columns to stamp, and the precondition values the
// persisting UPDATE must carry in its WHERE clause. Two racing writers then
// resolve at the database: one matches, the other sees zero rows.
type Change struct {
	Payment      *enums.PaymentStatus
	Order        *enums.OrderStatus
	Shipment     *enums.ShipmentStatus
	Cancellation *enums.CancellationStatus
	Refund       *enums.RefundStatus
	Return       *enums.ReturnStatus
	Timestamps   []string

	RequirePayment      []enums.PaymentStatus
	RequireOrder        []enums.OrderStatus
	RequireShipment     []enums.ShipmentStatus
	RequireCancellation []enums.CancellationStatus
	RequireReturn       []enums.ReturnStatus
}

type rule struct {
	requirePayment      []enums.PaymentStatus
	requireOrder        []enums.OrderStatus
	requireShipment     []enums.ShipmentStatus
	requireCancellation []enums.CancellationStatus
	requireReturn       []enums.ReturnStatus
	apply               func(Snapshot) Change
}

func paymentPtr(v enums.PaymentStatus) *enums.PaymentStatus             { return &v }
func orderPtr(v enums.OrderStatus) *enums.OrderStatus                   { return &v }
func shipmentPtr(v enums.ShipmentStatus) *enums.ShipmentStatus          { return &v }
func cancelPtr(v enums.CancellationStatus) *enums.CancellationStatus    { return &v }
func refundPtr(v enums.RefundStatus) *enums.RefundStatus                { return &v }
func returnPtr(v enums.ReturnStatus) *enums.ReturnStatus                { return &v }

// table enumerates every legal (state, event) pair. Any pair not present here
// is rejected; there are no ad hoc status checks scattered through handlers.
var table = map[Event]rule{
	EventPaymentCaptured: {
		requirePayment: []enums.PaymentStatus{enums.PaymentStatusInitiated},
		apply: func(Snapshot) Change {
			return Change{
				Payment:    paymentPtr(enums.PaymentStatusPaid),
				Order:      orderPtr(enums.OrderStatusConfirmed),
				Timestamps: []string{"paid_at", "confirmed_at"},
			}
		},
	},
	EventPaymentFailed: {
		requirePayment: []enums.PaymentStatus{enums.PaymentStatusInitiated},
		apply: func(Snapshot) Change {
			return Change{Payment: paymentPtr(enums.PaymentStatusFailed)}
		},
	},
	EventShipmentBooked: {
		requirePayment:      []enums.PaymentStatus{enums.PaymentStatusPaid},
		requireOrder:        []enums.OrderStatus{enums.OrderStatusConfirmed},
		requireShipment:     []enums.ShipmentStatus{enums.ShipmentStatusNotShipped},
		requireCancellation: []enums.CancellationStatus{enums.CancellationStatusNone},
		apply: func(Snapshot) Change {
			return Change{Shipment: shipmentPtr(enums.ShipmentStatusPickupScheduled)}
		},
	},
	EventShipmentPickedUp: {
		requireOrder: []enums.OrderStatus{enums.OrderStatusConfirmed},
		apply: func(Snapshot) Change {
			return Change{
				Order:      orderPtr(enums.OrderStatusPickedUp),
				Timestamps: []string{"picked_up_at"},
			}
		},
	},
	EventShipmentDelivered: {
		requireOrder: []enums.OrderStatus{enums.OrderStatusPickedUp, enums.OrderStatusConfirmed},
		apply: func(Snapshot) Change {
			return Change{
				Order:      orderPtr(enums.OrderStatusDelivered),
				Timestamps: []string{"delivered_at"},
			}
		},
	},
	EventCancellationRequested: {
		requirePayment:      []enums.PaymentStatus{enums.PaymentStatusPaid},
		requireOrder:        []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusPickedUp},
		requireCancellation: []enums.CancellationStatus{enums.CancellationStatusNone},
		apply: func(Snapshot) Change {
			return Change{
				Order:        orderPtr(enums.OrderStatusCancellationRequested),
				Cancellation: cancelPtr(enums.CancellationStatusRequested),
			}
		},
	},
	EventShipmentCancelled: {
		apply: func(Snapshot) Change {
			return Change{Shipment: shipmentPtr(enums.ShipmentStatusCancelled)}
		},
	},
	EventShipmentCancelFailed: {
		apply: func(Snapshot) Change {
			return Change{Shipment: shipmentPtr(enums.ShipmentStatusCancellationFailed)}
		},
	},
	EventRefundInitiated: {
		requirePayment:      []enums.PaymentStatus{enums.PaymentStatusPaid},
		requireCancellation: []enums.CancellationStatus{enums.CancellationStatusRequested},
		apply: func(Snapshot) Change {
			return Change{
				Refund:     refundPtr(enums.RefundStatusInitiated),
				Timestamps: []string{"refund_initiated_at"},
			}
		},
	},
	EventRefundCompleted: {
		requirePayment: []enums.PaymentStatus{enums.PaymentStatusPaid},
		apply: func(Snapshot) Change {
			return Change{
				Payment:      paymentPtr(enums.PaymentStatusRefunded),
				Order:        orderPtr(enums.OrderStatusCancelled),
				Cancellation: cancelPtr(enums.CancellationStatusCancelled),
				Refund:       refundPtr(enums.RefundStatusCompleted),
				Timestamps:   []string{"refund_completed_at", "cancelled_at"},
			}
		},
	},
	EventRefundFailed: {
		apply: func(Snapshot) Change {
			return Change{Refund: refundPtr(enums.RefundStatusFailed)}
		},
	},
	EventReturnRequested: {
		requirePayment: []enums.PaymentStatus{enums.PaymentStatusPaid},
		requireOrder:   []enums.OrderStatus{enums.OrderStatusDelivered},
		requireReturn:  []enums.ReturnStatus{enums.ReturnStatusNotRequested},
		apply: func(Snapshot) Change {
			return Change{
				Return:     returnPtr(enums.ReturnStatusRequested),
				Timestamps: []string{"return_requested_at"},
			}
		},
	},
	EventReturnPickupScheduled: {
		requireReturn: []enums.ReturnStatus{enums.ReturnStatusRequested},
		apply: func(Snapshot) Change {
			return Change{Return: returnPtr(enums.ReturnStatusPickupScheduled)}
		},
	},
	EventReturnInTransit: {
		requireReturn: []enums.ReturnStatus{enums.ReturnStatusPickupScheduled, enums.ReturnStatusRequested},
		apply: func(Snapshot) Change {
			return Change{Return: returnPtr(enums.ReturnStatusInTransit)}
		},
	},
	EventReturnDelivered: {
		requireReturn: []enums.ReturnStatus{enums.ReturnStatusInTransit, enums.ReturnStatusPickupScheduled},
		apply: func(Snapshot) Change {
			return Change{
				Return:     returnPtr(enums.ReturnStatusDelivered),
				Timestamps: []string{"return_delivered_at"},
			}
		},
	},
	EventReturnRefundInitiated: {
		requirePayment: []enums.PaymentStatus{enums.PaymentStatusPaid},
		requireReturn:  []enums.ReturnStatus{enums.ReturnStatusDelivered},
		apply: func(Snapshot) Change {
			return Change{
				Return:     returnPtr(enums.ReturnStatusRefundInitiated),
				Refund:     refundPtr(enums.RefundStatusInitiated),
				Timestamps: []string{"refund_initiated_at"},
			}
		},
	},
	EventReturnRefundCompleted: {
		requirePayment: []enums.PaymentStatus{enums.PaymentStatusPaid},
		requireReturn:  []enums.ReturnStatus{enums.ReturnStatusRefundInitiated, enums.ReturnStatusDelivered},
		apply: func(Snapshot) Change {
			return Change{
				Payment:    paymentPtr(enums.PaymentStatusRefunded),
				Order:      orderPtr(enums.OrderStatusReturned),
				Refund:     refundPtr(enums.RefundStatusCompleted),
				Return:     returnPtr(enums.ReturnStatusRefundCompleted),
				Timestamps: []string{"refund_completed_at"},
			}
		},
	},
	EventReturnRefundFailed: {
		requireReturn: []enums.ReturnStatus{enums.ReturnStatusRefundInitiated},
		apply: func(Snapshot) Change {
			// the return dimension stays at RETURN_REFUND_INITIATED so the
			// admin can retry; only the refund marker flips
			return Change{Refund: refundPtr(enums.RefundStatusFailed)}
		},
	},
	EventReturnCancelled: {
		requireReturn: []enums.ReturnStatus{
			enums.ReturnStatusRequested,
			enums.ReturnStatusPickupScheduled,
			enums.ReturnStatusInTransit,
		},
		apply: func(Snapshot) Change {
			return Change{Return: returnPtr(enums.ReturnStatusCancelled)}
		},
	},
}

// Attempt resolves an event against the order's current snapshot. It returns
// the change to persist, or a state-conflict error naming the violated
// precondition. Callers must carry the Require* values into the UPDATE's WHERE
// clause; a zero-rows-affected result means another writer won the race.
func Attempt(s Snapshot, e Event) (Change, error) {
	r, ok := table[e]
	if !ok {
		return Change{}, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("unknown lifecycle event %q", e))
	}
	if len(r.requirePayment) > 0 && !containsPayment(r.requirePayment, s.Payment) {
		return Change{}, preconditionError("payment_status", statusList(r.requirePayment), string(s.Payment))
	}
	if len(r.requireOrder) > 0 && !containsOrder(r.requireOrder, s.Order) {
		return Change{}, preconditionError("order_status", statusList(r.requireOrder), string(s.Order))
	}
	if len(r.requireShipment) > 0 && !containsShipment(r.requireShipment, s.Shipment) {
		return Change{}, preconditionError("shipment_status", statusList(r.requireShipment), string(s.Shipment))
	}
	if len(r.requireCancellation) > 0 && !containsCancellation(r.requireCancellation, s.Cancellation) {
		return Change{}, preconditionError("cancellation_status", statusList(r.requireCancellation), string(s.Cancellation))
	}
	if len(r.requireReturn) > 0 && !containsReturn(r.requireReturn, s.Return) {
		return Change{}, preconditionError("return_status", statusList(r.requireReturn), string(s.Return))
	}

	change := r.apply(s)
	change.RequirePayment = r.requirePayment
	change.RequireOrder = r.requireOrder
	change.RequireShipment = r.requireShipment
	change.RequireCancellation = r.requireCancellation
	change.RequireReturn = r.requireReturn
	return change, nil
}

func preconditionError(dimension string, allowed []string, got string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("%s must be in %v, currently %q", dimension, allowed, got))
}

func statusList[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func containsPayment(list []enums.PaymentStatus, v enums.PaymentStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsOrder(list []enums.OrderStatus, v enums.OrderStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsShipment(list []enums.ShipmentStatus, v enums.ShipmentStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsCancellation(list []enums.CancellationStatus, v enums.CancellationStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsReturn(list []enums.ReturnStatus, v enums.ReturnStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
