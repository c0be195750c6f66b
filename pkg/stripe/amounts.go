package stripe

import "github.com/shopspring/decimal"

// ToMinorUnits converts a major-unit amount (150.00) into the integer minor
// units the gateway bills in (15000). Sub-cent values are rounded half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts gateway minor units back into a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
