package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/gigbridge-backend/pkg/enums"
)

// Payment is a directed transfer attempt from payer to payee, optionally tied
// to a contract milestone. PlatformFee is always stored non-negative; refunds
// are a distinct payment type, never a negative fee.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayerID       uuid.UUID           `gorm:"column:payer_id;type:uuid;not null;index"`
	PayeeID       uuid.UUID           `gorm:"column:payee_id;type:uuid;not null;index"`
	ProjectID     *uuid.UUID          `gorm:"column:project_id;type:uuid"`
	ContractID    *uuid.UUID          `gorm:"column:contract_id;type:uuid;index"`
	MilestoneID   *uuid.UUID          `gorm:"column:milestone_id;type:uuid"`
	LedgerEntryID *uuid.UUID          `gorm:"column:ledger_entry_id;type:uuid"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	PlatformFee   decimal.Decimal     `gorm:"column:platform_fee;type:numeric(14,2);not null;default:0"`
	Currency      enums.Currency      `gorm:"column:currency;type:currency;not null;default:'usd'"`
	Method        enums.PaymentMethod `gorm:"column:method;type:payment_method;not null;default:'wallet'"`
	Type          enums.PaymentType   `gorm:"column:type;type:payment_type;not null;default:'project'"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	FailureReason *string             `gorm:"column:failure_reason"`
	ProcessedAt   *time.Time          `gorm:"column:processed_at"`
	CompletedAt   *time.Time          `gorm:"column:completed_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
