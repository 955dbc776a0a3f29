package enums

// NotificationEventType names the lifecycle emails the dispatcher can send.
type NotificationEventType string

const (
	NotificationOrderConfirmed        NotificationEventType = "order.confirmed"
	NotificationOrderShipped          NotificationEventType = "order.shipped"
	NotificationOrderDelivered        NotificationEventType = "order.delivered"
	NotificationOrderCancelled        NotificationEventType = "order.cancelled"
	NotificationRefundCompleted       NotificationEventType = "order.refund_completed"
	NotificationReturnRequested       NotificationEventType = "order.return_requested"
	NotificationReturnRefundCompleted NotificationEventType = "order.return_refund_completed"
)

// String implements fmt.Stringer.
func (n NotificationEventType) String() string {
	return string(n)
}
