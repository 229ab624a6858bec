package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/gigbridge-backend/pkg/enums"
)

// Milestone is one contracted unit of work. It reaches paid only from
// approved, and only after its linked payment has completed.
type Milestone struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ContractID     uuid.UUID             `gorm:"column:contract_id;type:uuid;not null;index"`
	Position       int                   `gorm:"column:position;not null"`
	Title          string                `gorm:"column:title;not null"`
	Description    *string               `gorm:"column:description"`
	Deliverables   pq.StringArray        `gorm:"column:deliverables;type:text[]"`
	Amount         decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	Status         enums.MilestoneStatus `gorm:"column:status;type:milestone_status;not null;default:'pending'"`
	Feedback       *string               `gorm:"column:feedback"`
	PaymentID      *uuid.UUID            `gorm:"column:payment_id;type:uuid"`
	StartedAt      *time.Time            `gorm:"column:started_at"`
	SubmissionDate *time.Time            `gorm:"column:submission_date"`
	ApprovalDate   *time.Time            `gorm:"column:approval_date"`
	PaymentDate    *time.Time            `gorm:"column:payment_date"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
