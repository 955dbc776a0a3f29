package enums

// ShipmentStatus tracks the courier-side state of the primary shipment.
//
// Unlike the other status dimensions this is a half-open set: the four
// values below are produced by this service, while any other value is the
// courier's own label stored as a raw passthrough from the tracking
// webhook. IsTerminalCancellation and NeedsCancellationRetry are the only
// gates the lifecycle depends on.
type ShipmentStatus string

const (
	ShipmentStatusNotShipped         ShipmentStatus = "NOT_SHIPPED"
	ShipmentStatusPickupScheduled    ShipmentStatus = "PICKUP_SCHEDULED"
	ShipmentStatusCancellationFailed ShipmentStatus = "SHIPPING_CANCELLATION_FAILED"
	ShipmentStatusCancelled          ShipmentStatus = "SHIPPING_CANCELLED"
)

// String implements fmt.Stringer.
func (s ShipmentStatus) String() string {
	return string(s)
}

// IsTerminalCancellation reports whether the shipment side no longer blocks a refund.
func (s ShipmentStatus) IsTerminalCancellation() bool {
	return s == ShipmentStatusCancelled || s == ShipmentStatusNotShipped
}

// NeedsCancellationRetry reports whether a prior cancellation attempt failed.
func (s ShipmentStatus) NeedsCancellationRetry() bool {
	return s == ShipmentStatusCancellationFailed
}
