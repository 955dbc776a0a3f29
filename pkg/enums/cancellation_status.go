package enums

import "fmt"

// CancellationStatus gates whether cancellation/refund retries are legal.
type CancellationStatus string

const (
	CancellationStatusNone      CancellationStatus = "none"
	CancellationStatusRequested CancellationStatus = "CANCELLATION_REQUESTED"
	CancellationStatusCancelled CancellationStatus = "CANCELLED"
)

var validCancellationStatuses = []CancellationStatus{
	CancellationStatusNone,
	CancellationStatusRequested,
	CancellationStatusCancelled,
}

// String implements fmt.Stringer.
func (c CancellationStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancellationStatus.
func (c CancellationStatus) IsValid() bool {
	for _, candidate := range validCancellationStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancellationStatus converts raw input into a CancellationStatus.
func ParseCancellationStatus(value string) (CancellationStatus, error) {
	for _, candidate := range validCancellationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancellation status %q", value)
}
