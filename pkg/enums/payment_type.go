package enums

import "fmt"

// PaymentType distinguishes what a payment settles.
type PaymentType string

const (
	PaymentTypeMilestone PaymentType = "milestone"
	PaymentTypeProject   PaymentType = "project"
	PaymentTypeBonus     PaymentType = "bonus"
	PaymentTypeRefund    PaymentType = "refund"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeMilestone,
	PaymentTypeProject,
	PaymentTypeBonus,
	PaymentTypeRefund,
}

// IsValid reports whether the value is a known PaymentType.
func (t PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePaymentType converts raw input into a PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
