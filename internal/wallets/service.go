package wallets

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	"github.com/gigbridge/gigbridge-backend/pkg/enums"
	pkgerrors "github.com/gigbridge/gigbridge-backend/pkg/errors"
	"github.com/gigbridge/gigbridge-backend/pkg/logger"
	"github.com/gigbridge/gigbridge-backend/pkg/pagination"
)

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the wallet service dependencies.
type ServiceParams struct {
	Logger          *logger.Logger
	Repo            Repository
	TxRunner        TxRunner
	DefaultCurrency enums.Currency
}

// Service owns wallets and their append-only ledgers. Balances move only
// through entry settlement; nothing else writes the balance column.
type Service struct {
	logger          *logger.Logger
	repo            Repository
	txRunner        TxRunner
	defaultCurrency enums.Currency

	now func() time.Time
}

func NewService(params ServiceParams) *Service {
	currency := params.DefaultCurrency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	return &Service{
		logger:          params.Logger,
		repo:            params.Repo,
		txRunner:        params.TxRunner,
		defaultCurrency: currency,
		now:             time.Now,
	}
}

// AppendEntryInput carries everything needed to record a ledger entry.
// Amount is signed; the sign must agree with the entry type.
type AppendEntryInput struct {
	WalletID    uuid.UUID
	Type        enums.LedgerEntryType
	Amount      decimal.Decimal
	Currency    enums.Currency
	RelatedType *enums.RelatedType
	RelatedID   *uuid.UUID
	Description *string
}

// CreateWallet provisions an empty wallet for the user.
func (s *Service) CreateWallet(ctx context.Context, userID uuid.UUID, currency enums.Currency) (*models.Wallet, error) {
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency").
			WithDetails(map[string]any{"currency": currency})
	}

	wallet := &models.Wallet{
		UserID:         userID,
		Balance:        decimal.Zero,
		PendingBalance: decimal.Zero,
		Currency:       currency,
	}
	if err := s.repo.CreateWallet(ctx, wallet); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating wallet")
	}

	ctx = s.logger.WithWalletID(ctx, wallet.ID.String())
	s.logger.Info(ctx, "wallet created")
	return wallet, nil
}

// GetWallet fetches a wallet by id.
func (s *Service) GetWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindWallet(ctx, walletID)
	if err != nil {
		return nil, walletLookupError(err)
	}
	return wallet, nil
}

// GetWalletByUser fetches the wallet owned by the user.
func (s *Service) GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindWalletByUser(ctx, userID)
	if err != nil {
		return nil, walletLookupError(err)
	}
	return wallet, nil
}

// AppendEntry records a pending ledger entry in its own transaction.
func (s *Service) AppendEntry(ctx context.Context, input AppendEntryInput) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.AppendEntryTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// AppendEntryTx records a pending ledger entry inside the caller's
// transaction. The wallet row is locked for the duration, so concurrent
// appends against the same wallet serialize. A debit is rejected when the
// settled balance minus already-pending debits cannot absorb it.
func (s *Service) AppendEntryTx(ctx context.Context, tx *gorm.DB, input AppendEntryInput) (*models.LedgerEntry, error) {
	if err := validateEntryInput(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)

	wallet, err := repo.FindWalletForUpdate(ctx, input.WalletID)
	if err != nil {
		return nil, walletLookupError(err)
	}

	currency := input.Currency
	if currency == "" {
		currency = wallet.Currency
	}
	if currency != wallet.Currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry currency does not match wallet").
			WithDetails(map[string]any{
				"wallet_currency": wallet.Currency,
				"entry_currency":  currency,
			})
	}

	if input.Amount.IsNegative() {
		pendingDebits, err := repo.SumPendingDebits(ctx, input.WalletID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing pending debits")
		}
		available := wallet.Balance.Add(pendingDebits)
		if available.Add(input.Amount).IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet cannot cover debit").
				WithDetails(map[string]any{
					"available": available.String(),
					"requested": input.Amount.Abs().String(),
				})
		}
	}

	entry := &models.LedgerEntry{
		WalletID:    input.WalletID,
		Type:        input.Type,
		Status:      enums.LedgerEntryStatusPending,
		Amount:      input.Amount,
		Currency:    currency,
		RelatedType: input.RelatedType,
		RelatedID:   input.RelatedID,
		Description: input.Description,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating ledger entry")
	}

	pending := wallet.PendingBalance.Add(input.Amount)
	if err := repo.UpdateWalletBalances(ctx, wallet.ID, wallet.Balance, pending); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating pending balance")
	}

	return entry, nil
}

// SettleEntry resolves a pending entry in its own transaction.
func (s *Service) SettleEntry(ctx context.Context, entryID uuid.UUID, outcome enums.LedgerEntryStatus) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.SettleEntryTx(ctx, tx, entryID, outcome)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// SettleEntryTx moves a pending entry to a terminal status inside the
// caller's transaction. Completing the entry folds its amount into the
// wallet balance; failing or cancelling only releases the pending amount.
// Settling an already-settled entry with the same outcome is a no-op;
// a different outcome is rejected.
func (s *Service) SettleEntryTx(ctx context.Context, tx *gorm.DB, entryID uuid.UUID, outcome enums.LedgerEntryStatus) (*models.LedgerEntry, error) {
	if !outcome.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement outcome must be terminal").
			WithDetails(map[string]any{"outcome": outcome})
	}

	repo := s.repo.WithTx(tx)

	entry, err := repo.FindEntryForUpdate(ctx, entryID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ledger entry")
	}

	if entry.Status.IsTerminal() {
		if entry.Status == outcome {
			return entry, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, "entry settled with different outcome").
			WithDetails(map[string]any{
				"settled_as": entry.Status,
				"requested":  outcome,
			})
	}

	wallet, err := repo.FindWalletForUpdate(ctx, entry.WalletID)
	if err != nil {
		return nil, walletLookupError(err)
	}

	balance := wallet.Balance
	if outcome == enums.LedgerEntryStatusCompleted {
		balance = balance.Add(entry.Amount)
		if balance.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "completing entry would overdraw wallet").
				WithDetails(map[string]any{
					"balance": wallet.Balance.String(),
					"amount":  entry.Amount.String(),
				})
		}
	}
	pending := wallet.PendingBalance.Sub(entry.Amount)

	settledAt := s.now().UTC()
	if err := repo.UpdateEntryStatus(ctx, entry.ID, outcome, settledAt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settling ledger entry")
	}
	if err := repo.UpdateWalletBalances(ctx, wallet.ID, balance, pending); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating wallet balance")
	}

	entry.Status = outcome
	entry.SettledAt = &settledAt
	return entry, nil
}

// ListEntries pages through a wallet's ledger, newest first.
func (s *Service) ListEntries(ctx context.Context, walletID uuid.UUID, params pagination.Params, filters EntryFilters) (*EntryList, error) {
	if _, err := s.repo.FindWallet(ctx, walletID); err != nil {
		return nil, walletLookupError(err)
	}

	list, err := s.repo.ListEntries(ctx, walletID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing ledger entries")
	}
	return list, nil
}

// RecomputeBalance re-derives the balance from completed entries and rewrites
// the wallet when the stored value has drifted. Returns the reconciled wallet.
func (s *Service) RecomputeBalance(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindWalletForUpdate(ctx, walletID)
		if err != nil {
			return walletLookupError(err)
		}

		derived, err := repo.SumCompletedEntries(ctx, walletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing completed entries")
		}

		if !locked.Balance.Equal(derived) {
			ctx := s.logger.WithFields(ctx, map[string]any{
				"wallet_id": walletID.String(),
				"stored":    locked.Balance.String(),
				"derived":   derived.String(),
			})
			s.logger.Warn(ctx, "wallet balance drifted from ledger; repairing")

			if err := repo.UpdateWalletBalances(ctx, walletID, derived, locked.PendingBalance); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "repairing wallet balance")
			}
			locked.Balance = derived
		}

		wallet = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func validateEntryInput(input AppendEntryInput) error {
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeInvalidEntryType, "unknown ledger entry type").
			WithDetails(map[string]any{"type": input.Type})
	}
	if input.Amount.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "entry amount must be non-zero")
	}
	if input.Type.RequiresPositiveAmount() && !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidEntryType, "entry type requires a positive amount").
			WithDetails(map[string]any{"type": input.Type, "amount": input.Amount.String()})
	}
	if input.Type.RequiresNegativeAmount() && !input.Amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeInvalidEntryType, "entry type requires a negative amount").
			WithDetails(map[string]any{"type": input.Type, "amount": input.Amount.String()})
	}
	return nil
}

func walletLookupError(err error) error {
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading wallet")
}
