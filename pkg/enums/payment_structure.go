package enums

import "fmt"

// PaymentStructure describes how a booking total is collected.
type PaymentStructure string

const (
	PaymentStructureFull  PaymentStructure = "FULL"
	PaymentStructureSplit PaymentStructure = "SPLIT_PAYMENT"
)

var validPaymentStructures = []PaymentStructure{
	PaymentStructureFull,
	PaymentStructureSplit,
}

// String implements fmt.Stringer.
func (p PaymentStructure) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStructure.
func (p PaymentStructure) IsValid() bool {
	for _, candidate := range validPaymentStructures {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStructure converts raw input into a PaymentStructure.
func ParsePaymentStructure(value string) (PaymentStructure, error) {
	for _, candidate := range validPaymentStructures {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment structure %q", value)
}
