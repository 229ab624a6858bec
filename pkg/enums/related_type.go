package enums

import "fmt"

// RelatedType tags which record a ledger entry or payment references.
// The relation is a typed lookup, never ownership.
type RelatedType string

const (
	RelatedTypePayment  RelatedType = "payment"
	RelatedTypeContract RelatedType = "contract"
	RelatedTypeProject  RelatedType = "project"
)

var validRelatedTypes = []RelatedType{
	RelatedTypePayment,
	RelatedTypeContract,
	RelatedTypeProject,
}

// IsValid reports whether the value is a known RelatedType.
func (t RelatedType) IsValid() bool {
	for _, candidate := range validRelatedTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseRelatedType converts raw input into a RelatedType.
func ParseRelatedType(value string) (RelatedType, error) {
	for _, candidate := range validRelatedTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid related type %q", value)
}
