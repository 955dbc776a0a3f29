package enums

import "fmt"

// OrderStatus tracks the primary order lifecycle.
type OrderStatus string

const (
	OrderStatusCheckedOut            OrderStatus = "CHECKED_OUT"
	OrderStatusConfirmed             OrderStatus = "CONFIRMED"
	OrderStatusCancellationRequested OrderStatus = "CANCELLATION_REQUESTED"
	OrderStatusCancelled             OrderStatus = "CANCELLED"
	OrderStatusPickedUp              OrderStatus = "PICKED_UP"
	OrderStatusDelivered             OrderStatus = "DELIVERED"
	OrderStatusReturned              OrderStatus = "RETURNED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCheckedOut,
	OrderStatusConfirmed,
	OrderStatusCancellationRequested,
	OrderStatusCancelled,
	OrderStatusPickedUp,
	OrderStatusDelivered,
	OrderStatusReturned,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
