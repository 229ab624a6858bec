package payments

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gigbridge/gigbridge-backend/internal/wallets"
	"github.com/gigbridge/gigbridge-backend/pkg/config"
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

// Ledger is the wallet surface the payment state machine drives. Payment and
// ledger transitions share one transaction via the Tx variants.
type Ledger interface {
	GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	AppendEntryTx(ctx context.Context, tx *gorm.DB, input wallets.AppendEntryInput) (*models.LedgerEntry, error)
	SettleEntryTx(ctx context.Context, tx *gorm.DB, entryID uuid.UUID, outcome enums.LedgerEntryStatus) (*models.LedgerEntry, error)
}

// MilestoneMarker flips a milestone to paid once its payment completes,
// inside the settlement transaction.
type MilestoneMarker interface {
	MarkMilestonePaidTx(ctx context.Context, tx *gorm.DB, milestoneID, paymentID uuid.UUID) error
}

// ServiceParams wires the payment service dependencies.
type ServiceParams struct {
	Logger     *logger.Logger
	Repo       Repository
	TxRunner   TxRunner
	Ledger     Ledger
	Milestones MilestoneMarker
	Processor  Processor
	Settlement config.SettlementConfig
}

// Service runs the payment state machine. A payment and its ledger entry move
// in lockstep: process appends the payer's pending debit, settle resolves both
// in one transaction, and a failed capture cancels the entry rather than ever
// leaving it completed alone.
type Service struct {
	logger     *logger.Logger
	repo       Repository
	txRunner   TxRunner
	ledger     Ledger
	milestones MilestoneMarker
	processor  Processor
	settlement config.SettlementConfig

	now func() time.Time
}

func NewService(params ServiceParams) *Service {
	processor := params.Processor
	if processor == nil {
		processor = WalletProcessor{}
	}
	return &Service{
		logger:     params.Logger,
		repo:       params.Repo,
		txRunner:   params.TxRunner,
		ledger:     params.Ledger,
		milestones: params.Milestones,
		processor:  processor,
		settlement: params.Settlement,
		now:        time.Now,
	}
}

// InitiateInput describes a new payment.
type InitiateInput struct {
	PayerID     uuid.UUID
	PayeeID     uuid.UUID
	ProjectID   *uuid.UUID
	ContractID  *uuid.UUID
	MilestoneID *uuid.UUID
	Amount      decimal.Decimal
	PlatformFee decimal.Decimal
	Currency    enums.Currency
	Method      enums.PaymentMethod
	Type        enums.PaymentType
}

// SettleInput resolves a processing payment.
type SettleInput struct {
	PaymentID uuid.UUID
	Success   bool
	Reason    *string
}

// Initiate creates a payment in pending.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (*models.Payment, error) {
	if err := validateInitiateInput(input); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		PayerID:     input.PayerID,
		PayeeID:     input.PayeeID,
		ProjectID:   input.ProjectID,
		ContractID:  input.ContractID,
		MilestoneID: input.MilestoneID,
		Amount:      input.Amount,
		PlatformFee: input.PlatformFee,
		Currency:    input.Currency,
		Method:      input.Method,
		Type:        input.Type,
		Status:      enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating payment")
	}

	ctx = s.logger.WithPaymentID(ctx, payment.ID.String())
	s.logger.Info(ctx, "payment initiated")
	return payment, nil
}

// Get fetches a payment by id.
func (s *Service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.Find(ctx, paymentID)
	if err != nil {
		return nil, paymentLookupError(err)
	}
	return payment, nil
}

// ListByUser pages through payments where the user is payer or payee.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*PaymentList, error) {
	list, err := s.repo.ListByUser(ctx, userID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing payments")
	}
	return list, nil
}

// Process moves a pending payment to processing and appends the payer's
// debit entry, pending, in the same transaction. This is the only point a
// payment entry is appended. Re-processing a processing payment is a no-op.
func (s *Service) Process(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payerWallet := func(payerID uuid.UUID) (*models.Wallet, error) {
		return s.ledger.GetWalletByUser(ctx, payerID)
	}

	var payment *models.Payment
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindForUpdate(ctx, paymentID)
		if err != nil {
			return paymentLookupError(err)
		}
		if locked.Status == enums.PaymentStatusProcessing {
			payment = locked
			return nil
		}
		if locked.Status != enums.PaymentStatusPending {
			return transitionConflict(locked.Status, enums.PaymentStatusProcessing)
		}

		wallet, err := payerWallet(locked.PayerID)
		if err != nil {
			return err
		}

		relatedType := enums.RelatedTypePayment
		description := "payment hold"
		entry, err := s.ledger.AppendEntryTx(ctx, tx, wallets.AppendEntryInput{
			WalletID:    wallet.ID,
			Type:        enums.LedgerEntryTypePayment,
			Amount:      locked.Amount.Neg(),
			Currency:    locked.Currency,
			RelatedType: &relatedType,
			RelatedID:   &locked.ID,
			Description: &description,
		})
		if err != nil {
			return err
		}

		processedAt := s.now().UTC()
		if err := repo.Update(ctx, locked.ID, map[string]any{
			"status":          enums.PaymentStatusProcessing,
			"ledger_entry_id": entry.ID,
			"processed_at":    processedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating payment")
		}

		locked.Status = enums.PaymentStatusProcessing
		locked.LedgerEntryID = &entry.ID
		locked.ProcessedAt = &processedAt
		payment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithPaymentID(ctx, payment.ID.String())
	s.logger.Info(ctx, "payment processing")
	return payment, nil
}

// Settle resolves a processing payment. On success the processor captures
// funds under bounded retry, then the payer entry completes and the payee is
// credited the amount net of the platform fee, all in one transaction. On
// failure (explicit or after retries are exhausted) the entry is cancelled
// and the payment marked failed with the stored reason. Settling a payment
// already in the requested terminal state is a no-op.
func (s *Service) Settle(ctx context.Context, input SettleInput) (*models.Payment, error) {
	payment, err := s.repo.Find(ctx, input.PaymentID)
	if err != nil {
		return nil, paymentLookupError(err)
	}

	target := enums.PaymentStatusFailed
	if input.Success {
		target = enums.PaymentStatusCompleted
	}
	if payment.Status == target {
		return payment, nil
	}
	if payment.Status != enums.PaymentStatusProcessing {
		return nil, transitionConflict(payment.Status, target)
	}

	success := input.Success
	reason := input.Reason
	var captureErr error
	if success {
		// Capture outside the settlement transaction; the database lock
		// must not be held across processor round trips.
		if captureErr = chargeWithRetry(ctx, s.processor, s.settlement, payment); captureErr != nil {
			success = false
			msg := captureErr.Error()
			reason = &msg
		}
	}

	settled, err := s.finalize(ctx, input.PaymentID, success, reason)
	if err != nil {
		return nil, err
	}
	if captureErr != nil {
		ctx = s.logger.WithPaymentID(ctx, settled.ID.String())
		s.logger.Error(ctx, "payment capture failed after retries", captureErr)
		return settled, captureErr
	}
	return settled, nil
}

func (s *Service) finalize(ctx context.Context, paymentID uuid.UUID, success bool, reason *string) (*models.Payment, error) {
	var payment *models.Payment
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindForUpdate(ctx, paymentID)
		if err != nil {
			return paymentLookupError(err)
		}

		target := enums.PaymentStatusFailed
		if success {
			target = enums.PaymentStatusCompleted
		}
		if locked.Status == target {
			payment = locked
			return nil
		}
		if locked.Status != enums.PaymentStatusProcessing {
			return transitionConflict(locked.Status, target)
		}
		if locked.LedgerEntryID == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "processing payment has no ledger entry")
		}

		if success {
			if err := s.complete(ctx, tx, locked); err != nil {
				return err
			}
		} else {
			if _, err := s.ledger.SettleEntryTx(ctx, tx, *locked.LedgerEntryID, enums.LedgerEntryStatusCancelled); err != nil {
				return err
			}
			if err := repo.Update(ctx, locked.ID, map[string]any{
				"status":         enums.PaymentStatusFailed,
				"failure_reason": reason,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating payment")
			}
			locked.Status = enums.PaymentStatusFailed
			locked.FailureReason = reason
		}

		payment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithPaymentID(ctx, payment.ID.String())
	s.logger.Info(ctx, "payment settled as "+payment.Status.String())
	return payment, nil
}

func (s *Service) complete(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	if _, err := s.ledger.SettleEntryTx(ctx, tx, *payment.LedgerEntryID, enums.LedgerEntryStatusCompleted); err != nil {
		return err
	}

	net := payment.Amount.Sub(payment.PlatformFee)
	if net.IsPositive() {
		payeeWallet, err := s.ledger.GetWalletByUser(ctx, payment.PayeeID)
		if err != nil {
			return err
		}

		relatedType := enums.RelatedTypePayment
		description := "payment proceeds"
		credit, err := s.ledger.AppendEntryTx(ctx, tx, wallets.AppendEntryInput{
			WalletID:    payeeWallet.ID,
			Type:        enums.LedgerEntryTypeTransfer,
			Amount:      net,
			Currency:    payment.Currency,
			RelatedType: &relatedType,
			RelatedID:   &payment.ID,
			Description: &description,
		})
		if err != nil {
			return err
		}
		if _, err := s.ledger.SettleEntryTx(ctx, tx, credit.ID, enums.LedgerEntryStatusCompleted); err != nil {
			return err
		}
	}

	if payment.MilestoneID != nil && s.milestones != nil {
		if err := s.milestones.MarkMilestonePaidTx(ctx, tx, *payment.MilestoneID, payment.ID); err != nil {
			return err
		}
	}

	completedAt := s.now().UTC()
	if err := s.repo.WithTx(tx).Update(ctx, payment.ID, map[string]any{
		"status":       enums.PaymentStatusCompleted,
		"completed_at": completedAt,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating payment")
	}
	payment.Status = enums.PaymentStatusCompleted
	payment.CompletedAt = &completedAt
	return nil
}

// Cancel voids a payment that has not started processing.
func (s *Service) Cancel(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	return s.transition(ctx, paymentID, enums.PaymentStatusCancelled, enums.PaymentStatusPending)
}

// Refund reverses a completed payment: the payer is credited the full amount
// and the payee's net proceeds are clawed back, in one transaction.
func (s *Service) Refund(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	var payment *models.Payment
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindForUpdate(ctx, paymentID)
		if err != nil {
			return paymentLookupError(err)
		}
		if locked.Status == enums.PaymentStatusRefunded {
			payment = locked
			return nil
		}
		if locked.Status != enums.PaymentStatusCompleted {
			return transitionConflict(locked.Status, enums.PaymentStatusRefunded)
		}

		relatedType := enums.RelatedTypePayment

		payerWallet, err := s.ledger.GetWalletByUser(ctx, locked.PayerID)
		if err != nil {
			return err
		}
		refundDesc := "payment refund"
		refund, err := s.ledger.AppendEntryTx(ctx, tx, wallets.AppendEntryInput{
			WalletID:    payerWallet.ID,
			Type:        enums.LedgerEntryTypeRefund,
			Amount:      locked.Amount,
			Currency:    locked.Currency,
			RelatedType: &relatedType,
			RelatedID:   &locked.ID,
			Description: &refundDesc,
		})
		if err != nil {
			return err
		}
		if _, err := s.ledger.SettleEntryTx(ctx, tx, refund.ID, enums.LedgerEntryStatusCompleted); err != nil {
			return err
		}

		net := locked.Amount.Sub(locked.PlatformFee)
		if net.IsPositive() {
			payeeWallet, err := s.ledger.GetWalletByUser(ctx, locked.PayeeID)
			if err != nil {
				return err
			}
			clawbackDesc := "refund clawback"
			clawback, err := s.ledger.AppendEntryTx(ctx, tx, wallets.AppendEntryInput{
				WalletID:    payeeWallet.ID,
				Type:        enums.LedgerEntryTypeTransfer,
				Amount:      net.Neg(),
				Currency:    locked.Currency,
				RelatedType: &relatedType,
				RelatedID:   &locked.ID,
				Description: &clawbackDesc,
			})
			if err != nil {
				return err
			}
			if _, err := s.ledger.SettleEntryTx(ctx, tx, clawback.ID, enums.LedgerEntryStatusCompleted); err != nil {
				return err
			}
		}

		if err := repo.Update(ctx, locked.ID, map[string]any{
			"status": enums.PaymentStatusRefunded,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating payment")
		}
		locked.Status = enums.PaymentStatusRefunded
		payment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithPaymentID(ctx, payment.ID.String())
	s.logger.Info(ctx, "payment refunded")
	return payment, nil
}

// Dispute flags a completed payment; funds stay put until resolution.
func (s *Service) Dispute(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	return s.transition(ctx, paymentID, enums.PaymentStatusDisputed, enums.PaymentStatusCompleted)
}

func (s *Service) transition(ctx context.Context, paymentID uuid.UUID, target enums.PaymentStatus, allowedFrom enums.PaymentStatus) (*models.Payment, error) {
	var payment *models.Payment
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindForUpdate(ctx, paymentID)
		if err != nil {
			return paymentLookupError(err)
		}
		if locked.Status == target {
			payment = locked
			return nil
		}
		if locked.Status != allowedFrom {
			return transitionConflict(locked.Status, target)
		}

		if err := repo.Update(ctx, locked.ID, map[string]any{"status": target}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating payment")
		}
		locked.Status = target
		payment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func validateInitiateInput(input InitiateInput) error {
	if input.PayerID == uuid.Nil || input.PayeeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payer and payee are required")
	}
	if input.PayerID == input.PayeeID {
		return pkgerrors.New(pkgerrors.CodeValidation, "payer and payee must differ")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.PlatformFee.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "platform fee must not be negative")
	}
	if input.PlatformFee.GreaterThan(input.Amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "platform fee cannot exceed amount")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	if !input.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment type")
	}
	if input.Type == enums.PaymentTypeMilestone && (input.ContractID == nil || input.MilestoneID == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "milestone payments require contract and milestone ids")
	}
	return nil
}

func transitionConflict(from, to enums.PaymentStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "payment transition disallowed").
		WithDetails(map[string]any{"from": from, "to": to})
}

func paymentLookupError(err error) error {
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
}
