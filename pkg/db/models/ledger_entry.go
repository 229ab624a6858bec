package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/gigbridge-backend/pkg/enums"
)

// LedgerEntry records one balance-affecting event on a wallet. Entries are
// created pending and transition exactly once to a terminal status; a settled
// entry is immutable. Amount is signed: deposits and refunds positive,
// withdrawals, fees and payments negative, transfers either.
type LedgerEntry struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID    uuid.UUID               `gorm:"column:wallet_id;type:uuid;not null;index"`
	Type        enums.LedgerEntryType   `gorm:"column:type;type:ledger_entry_type_enum;not null"`
	Status      enums.LedgerEntryStatus `gorm:"column:status;type:ledger_entry_status;not null;default:'pending'"`
	Amount      decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency    enums.Currency          `gorm:"column:currency;type:currency;not null;default:'usd'"`
	RelatedType *enums.RelatedType      `gorm:"column:related_type;type:related_type_enum"`
	RelatedID   *uuid.UUID              `gorm:"column:related_id;type:uuid"`
	Description *string                 `gorm:"column:description"`
	SettledAt   *time.Time              `gorm:"column:settled_at"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}
