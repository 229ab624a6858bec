package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/gigbridge-backend/pkg/enums"
)

// Wallet holds the derived running balance for one user. Balance is never
// written directly by callers; it moves only when a ledger entry settles, in
// the same transaction. Invariant: balance equals the sum of all completed
// entries' signed amounts.
type Wallet struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;unique"`
	Balance        decimal.Decimal `gorm:"column:balance;type:numeric(14,2);not null;default:0"`
	PendingBalance decimal.Decimal `gorm:"column:pending_balance;type:numeric(14,2);not null;default:0"`
	Currency       enums.Currency  `gorm:"column:currency;type:currency;not null;default:'usd'"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
