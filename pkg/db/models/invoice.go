package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/gigbridge-backend/pkg/enums"
)

// Invoice is a derived billing summary over completed payments for one
// client/freelancer pair. It is presentational: totals are recomputed from
// line items and are never authoritative over wallet balances.
type Invoice struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number       string              `gorm:"column:number;not null;unique"`
	ClientID     uuid.UUID           `gorm:"column:client_id;type:uuid;not null;index"`
	FreelancerID uuid.UUID           `gorm:"column:freelancer_id;type:uuid;not null;index"`
	Status       enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;default:'draft'"`
	Subtotal     decimal.Decimal     `gorm:"column:subtotal;type:numeric(14,2);not null;default:0"`
	TaxRate      decimal.Decimal     `gorm:"column:tax_rate;type:numeric(6,4);not null;default:0"`
	TaxAmount    decimal.Decimal     `gorm:"column:tax_amount;type:numeric(14,2);not null;default:0"`
	Discount     decimal.Decimal     `gorm:"column:discount;type:numeric(14,2);not null;default:0"`
	Total        decimal.Decimal     `gorm:"column:total;type:numeric(14,2);not null;default:0"`
	Currency     enums.Currency      `gorm:"column:currency;type:currency;not null;default:'usd'"`
	IssuedAt     time.Time           `gorm:"column:issued_at;not null"`
	DueDate      time.Time           `gorm:"column:due_date;not null"`
	SentAt       *time.Time          `gorm:"column:sent_at"`
	ViewedAt     *time.Time          `gorm:"column:viewed_at"`
	PaidAt       *time.Time          `gorm:"column:paid_at"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceID;references:ID"`
}
