package contracts

import (
	"context"

	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	"github.com/gigbridge/gigbridge-backend/pkg/enums"
	"github.com/gigbridge/gigbridge-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContractList is one page of contracts plus the cursor for the next page.
type ContractList struct {
	Contracts  []models.Contract
	NextCursor string
}

// Repository manages contract and milestone persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contract *models.Contract) error
	Find(ctx context.Context, contractID uuid.UUID) (*models.Contract, error)
	FindForUpdate(ctx context.Context, contractID uuid.UUID) (*models.Contract, error)
	Update(ctx context.Context, contractID uuid.UUID, fields map[string]any) error
	ListByParty(ctx context.Context, userID uuid.UUID, params pagination.Params, status *enums.ContractStatus) (*ContractList, error)
	FindMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, error)
	FindMilestoneForUpdate(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, error)
	UpdateMilestone(ctx context.Context, milestoneID uuid.UUID, fields map[string]any) error
	ListMilestones(ctx context.Context, contractID uuid.UUID) ([]models.Milestone, error)
	CountUnresolvedMilestones(ctx context.Context, contractID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a contract repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, contract *models.Contract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *repository) Find(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&contract, "id = ?", contractID).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *repository) FindForUpdate(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&contract, "id = ?", contractID).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *repository) Update(ctx context.Context, contractID uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", contractID).
		Updates(fields).Error
}

func (r *repository) ListByParty(ctx context.Context, userID uuid.UUID, params pagination.Params, status *enums.ContractStatus) (*ContractList, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("client_id = ? OR freelancer_id = ?", userID, userID)

	if status != nil {
		query = query.Where("status = ?", *status)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var contracts []models.Contract
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&contracts).Error; err != nil {
		return nil, err
	}

	list := &ContractList{}
	if len(contracts) > limit {
		contracts = contracts[:limit]
		last := contracts[len(contracts)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	list.Contracts = contracts
	return list, nil
}

func (r *repository) FindMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	if err := r.db.WithContext(ctx).First(&milestone, "id = ?", milestoneID).Error; err != nil {
		return nil, err
	}
	return &milestone, nil
}

func (r *repository) FindMilestoneForUpdate(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&milestone, "id = ?", milestoneID).Error; err != nil {
		return nil, err
	}
	return &milestone, nil
}

func (r *repository) UpdateMilestone(ctx context.Context, milestoneID uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("id = ?", milestoneID).
		Updates(fields).Error
}

func (r *repository) ListMilestones(ctx context.Context, contractID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("position ASC").
		Find(&milestones).Error
	if err != nil {
		return nil, err
	}
	return milestones, nil
}

func (r *repository) CountUnresolvedMilestones(ctx context.Context, contractID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("contract_id = ?", contractID).
		Where("status NOT IN ?", []enums.MilestoneStatus{
			enums.MilestoneStatusPaid,
			enums.MilestoneStatusRejected,
		}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
