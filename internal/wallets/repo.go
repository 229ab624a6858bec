package wallets

import (
	"context"
	"time"

	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	"github.com/gigbridge/gigbridge-backend/pkg/enums"
	"github.com/gigbridge/gigbridge-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntryFilters narrow ledger entry listings.
type EntryFilters struct {
	Type   *enums.LedgerEntryType
	Status *enums.LedgerEntryStatus
}

// EntryList is one page of ledger entries plus the cursor for the next page.
type EntryList struct {
	Entries    []models.LedgerEntry
	NextCursor string
}

// Repository manages persistence for wallets and their ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	FindWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	FindWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	// FindWalletForUpdate locks the wallet row, serializing all ledger
	// mutations for that wallet. Callers must hold an open transaction.
	FindWalletForUpdate(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	UpdateWalletBalances(ctx context.Context, walletID uuid.UUID, balance, pending decimal.Decimal) error
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	FindEntry(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error)
	FindEntryForUpdate(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error)
	UpdateEntryStatus(ctx context.Context, entryID uuid.UUID, status enums.LedgerEntryStatus, settledAt time.Time) error
	ListEntries(ctx context.Context, walletID uuid.UUID, params pagination.Params, filters EntryFilters) (*EntryList, error)
	SumCompletedEntries(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	SumPendingDebits(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) FindWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", walletID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindWalletForUpdate(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&wallet, "id = ?", walletID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) UpdateWalletBalances(ctx context.Context, walletID uuid.UUID, balance, pending decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]any{
			"balance":         balance,
			"pending_balance": pending,
		}).Error
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindEntry(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", entryID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindEntryForUpdate(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&entry, "id = ?", entryID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) UpdateEntryStatus(ctx context.Context, entryID uuid.UUID, status enums.LedgerEntryStatus, settledAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]any{
			"status":     status,
			"settled_at": settledAt,
		}).Error
}

func (r *repository) ListEntries(ctx context.Context, walletID uuid.UUID, params pagination.Params, filters EntryFilters) (*EntryList, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("wallet_id = ?", walletID)

	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at, id) < (?, ?)",
			cursor.CreatedAt, cursor.ID,
		)
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var entries []models.LedgerEntry
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	list := &EntryList{}
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	list.Entries = entries
	return list, nil
}

func (r *repository) SumCompletedEntries(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	return r.sumEntries(ctx, walletID, "status = ?", enums.LedgerEntryStatusCompleted)
}

func (r *repository) SumPendingDebits(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	return r.sumEntries(ctx, walletID, "status = ? AND amount < 0", enums.LedgerEntryStatusPending)
}

func (r *repository) sumEntries(ctx context.Context, walletID uuid.UUID, cond string, args ...any) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("wallet_id = ?", walletID).
		Where(cond, args...).
		Select("SUM(amount)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
