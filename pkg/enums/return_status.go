package enums

import "fmt"

// ReturnStatus tracks the post-delivery return flow.
type ReturnStatus string

const (
	ReturnStatusNotRequested    ReturnStatus = "NOT_REQUESTED"
	ReturnStatusRequested       ReturnStatus = "RETURN_REQUESTED"
	ReturnStatusPickupScheduled ReturnStatus = "RETURN_PICKUP_SCHEDULED"
	ReturnStatusInTransit       ReturnStatus = "RETURN_IN_TRANSIT"
	ReturnStatusDelivered       ReturnStatus = "RETURN_DELIVERED"
	ReturnStatusRefundInitiated ReturnStatus = "RETURN_REFUND_INITIATED"
	ReturnStatusRefundCompleted ReturnStatus = "RETURN_REFUND_COMPLETED"
	ReturnStatusCancelled       ReturnStatus = "RETURN_CANCELLED"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusNotRequested,
	ReturnStatusRequested,
	ReturnStatusPickupScheduled,
	ReturnStatusInTransit,
	ReturnStatusDelivered,
	ReturnStatusRefundInitiated,
	ReturnStatusRefundCompleted,
	ReturnStatusCancelled,
}

// String implements fmt.Stringer.
func (r ReturnStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnStatus.
func (r ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}
