package enums

import "fmt"

// PaymentStageStatus tracks the installment lifecycle of a payment plan stage.
type PaymentStageStatus string

const (
	PaymentStageStatusPending    PaymentStageStatus = "PENDING"
	PaymentStageStatusProcessing PaymentStageStatus = "PROCESSING"
	PaymentStageStatusPaid       PaymentStageStatus = "PAID"
)

var validPaymentStageStatuses = []PaymentStageStatus{
	PaymentStageStatusPending,
	PaymentStageStatusProcessing,
	PaymentStageStatusPaid,
}

// String implements fmt.Stringer.
func (p PaymentStageStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStageStatus.
func (p PaymentStageStatus) IsValid() bool {
	for _, candidate := range validPaymentStageStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStageStatus converts raw input into a PaymentStageStatus.
func ParsePaymentStageStatus(value string) (PaymentStageStatus, error) {
	for _, candidate := range validPaymentStageStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment stage status %q", value)
}

// IsLocked reports whether money is in flight or captured for the stage.
func (p PaymentStageStatus) IsLocked() bool {
	return p == PaymentStageStatusProcessing || p == PaymentStageStatusPaid
}
