package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type_enum enum in Postgres.
type LedgerEntryType string

const (
	LedgerEntryTypeDeposit    LedgerEntryType = "deposit"
	LedgerEntryTypeWithdrawal LedgerEntryType = "withdrawal"
	LedgerEntryTypePayment    LedgerEntryType = "payment"
	LedgerEntryTypeRefund     LedgerEntryType = "refund"
	LedgerEntryTypeFee        LedgerEntryType = "fee"
	LedgerEntryTypeTransfer   LedgerEntryType = "transfer"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeDeposit,
	LedgerEntryTypeWithdrawal,
	LedgerEntryTypePayment,
	LedgerEntryTypeRefund,
	LedgerEntryTypeFee,
	LedgerEntryTypeTransfer,
}

// IsValid reports whether the value matches the canonical entry type enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// RequiresPositiveAmount reports whether entries of this type credit the wallet.
// Transfers carry either sign and return false from both predicates.
func (t LedgerEntryType) RequiresPositiveAmount() bool {
	switch t {
	case LedgerEntryTypeDeposit, LedgerEntryTypeRefund:
		return true
	default:
		return false
	}
}

// RequiresNegativeAmount reports whether entries of this type debit the wallet.
func (t LedgerEntryType) RequiresNegativeAmount() bool {
	switch t {
	case LedgerEntryTypeWithdrawal, LedgerEntryTypeFee, LedgerEntryTypePayment:
		return true
	default:
		return false
	}
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
