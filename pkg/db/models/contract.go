package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/gigbridge-backend/pkg/enums"
)

// Contract binds a client and a freelancer over an ordered set of milestones.
// It activates only once both parties have signed and completes only once
// every milestone is paid or rejected.
type Contract struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID          uuid.UUID            `gorm:"column:project_id;type:uuid;not null;index"`
	ClientID           uuid.UUID            `gorm:"column:client_id;type:uuid;not null;index"`
	FreelancerID       uuid.UUID            `gorm:"column:freelancer_id;type:uuid;not null;index"`
	Title              string               `gorm:"column:title;not null"`
	Status             enums.ContractStatus `gorm:"column:status;type:contract_status;not null;default:'draft'"`
	ClientSigned       bool                 `gorm:"column:client_signed;not null;default:false"`
	ClientSignedAt     *time.Time           `gorm:"column:client_signed_at"`
	FreelancerSigned   bool                 `gorm:"column:freelancer_signed;not null;default:false"`
	FreelancerSignedAt *time.Time           `gorm:"column:freelancer_signed_at"`
	TerminationReason  *string              `gorm:"column:termination_reason"`
	TotalAmount        decimal.Decimal      `gorm:"column:total_amount;type:numeric(14,2);not null;default:0"`
	Currency           enums.Currency       `gorm:"column:currency;type:currency;not null;default:'usd'"`
	ActivatedAt        *time.Time           `gorm:"column:activated_at"`
	CompletedAt        *time.Time           `gorm:"column:completed_at"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Milestones []Milestone `gorm:"foreignKey:ContractID;references:ID"`
}
