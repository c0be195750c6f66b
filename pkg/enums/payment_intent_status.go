package enums

import "fmt"

// PaymentIntentStatus tracks the lifecycle of a booking payment (primary or second link).
type PaymentIntentStatus string

const (
	PaymentIntentStatusCreated   PaymentIntentStatus = "CREATED"
	PaymentIntentStatusSucceeded PaymentIntentStatus = "SUCCEEDED"
	PaymentIntentStatusRefunded  PaymentIntentStatus = "REFUNDED"
	PaymentIntentStatusExpired   PaymentIntentStatus = "EXPIRED"
	PaymentIntentStatusCancelled PaymentIntentStatus = "CANCELLED"
)

var validPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentStatusCreated,
	PaymentIntentStatusSucceeded,
	PaymentIntentStatusRefunded,
	PaymentIntentStatusExpired,
	PaymentIntentStatusCancelled,
}

// String implements fmt.Stringer.
func (p PaymentIntentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentIntentStatus.
func (p PaymentIntentStatus) IsValid() bool {
	for _, candidate := range validPaymentIntentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentIntentStatus converts raw input into a PaymentIntentStatus.
func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	for _, candidate := range validPaymentIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment intent status %q", value)
}

// IsTerminal reports whether no further payment can happen in this status.
func (p PaymentIntentStatus) IsTerminal() bool {
	switch p {
	case PaymentIntentStatusSucceeded, PaymentIntentStatusRefunded, PaymentIntentStatusExpired, PaymentIntentStatusCancelled:
		return true
	}
	return false
}
