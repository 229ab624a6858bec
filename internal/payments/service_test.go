package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
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

type fakeRepository struct {
	createFn           func(ctx context.Context, payment *models.Payment) error
	findFn             func(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	findForUpdateFn    func(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	updateFn           func(ctx context.Context, paymentID uuid.UUID, fields map[string]any) error
	listByUserFn       func(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*PaymentList, error)
	listStalePendingFn func(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, payment *models.Payment) error {
	if f.createFn != nil {
		return f.createFn(ctx, payment)
	}
	return nil
}

func (f *fakeRepository) Find(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if f.findFn != nil {
		return f.findFn(ctx, paymentID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindForUpdate(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if f.findForUpdateFn != nil {
		return f.findForUpdateFn(ctx, paymentID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) Update(ctx context.Context, paymentID uuid.UUID, fields map[string]any) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, paymentID, fields)
	}
	return nil
}

func (f *fakeRepository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*PaymentList, error) {
	if f.listByUserFn != nil {
		return f.listByUserFn(ctx, userID, params, filters)
	}
	return &PaymentList{}, nil
}

func (f *fakeRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	if f.listStalePendingFn != nil {
		return f.listStalePendingFn(ctx, olderThan, limit)
	}
	return nil, nil
}

type fakeLedger struct {
	wallets      map[uuid.UUID]*models.Wallet
	appended     []wallets.AppendEntryInput
	settled      map[uuid.UUID]enums.LedgerEntryStatus
	appendErr    error
	settleErrFor map[uuid.UUID]error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		wallets: map[uuid.UUID]*models.Wallet{},
		settled: map[uuid.UUID]enums.LedgerEntryStatus{},
	}
}

func (f *fakeLedger) addWallet(userID uuid.UUID) *models.Wallet {
	wallet := &models.Wallet{ID: uuid.New(), UserID: userID, Currency: enums.CurrencyUSD}
	f.wallets[userID] = wallet
	return wallet
}

func (f *fakeLedger) GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, ok := f.wallets[userID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	return wallet, nil
}

func (f *fakeLedger) AppendEntryTx(ctx context.Context, tx *gorm.DB, input wallets.AppendEntryInput) (*models.LedgerEntry, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.appended = append(f.appended, input)
	return &models.LedgerEntry{
		ID:       uuid.New(),
		WalletID: input.WalletID,
		Type:     input.Type,
		Status:   enums.LedgerEntryStatusPending,
		Amount:   input.Amount,
	}, nil
}

func (f *fakeLedger) SettleEntryTx(ctx context.Context, tx *gorm.DB, entryID uuid.UUID, outcome enums.LedgerEntryStatus) (*models.LedgerEntry, error) {
	if err := f.settleErrFor[entryID]; err != nil {
		return nil, err
	}
	f.settled[entryID] = outcome
	return &models.LedgerEntry{ID: entryID, Status: outcome}, nil
}

type fakeMarker struct {
	paid map[uuid.UUID]uuid.UUID
}

func (f *fakeMarker) MarkMilestonePaidTx(ctx context.Context, tx *gorm.DB, milestoneID, paymentID uuid.UUID) error {
	if f.paid == nil {
		f.paid = map[uuid.UUID]uuid.UUID{}
	}
	f.paid[milestoneID] = paymentID
	return nil
}

type fakeProcessor struct {
	calls int
	errs  []error
}

func (f *fakeProcessor) Charge(ctx context.Context, payment *models.Payment) error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
}

func money(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func fastSettlement() config.SettlementConfig {
	return config.SettlementConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func newTestService(repo Repository, ledger Ledger, marker MilestoneMarker, processor Processor) *Service {
	return NewService(ServiceParams{
		Logger:     testLogger(),
		Repo:       repo,
		TxRunner:   stubTxRunner{},
		Ledger:     ledger,
		Milestones: marker,
		Processor:  processor,
		Settlement: fastSettlement(),
	})
}

func pendingPayment(payerID, payeeID uuid.UUID) *models.Payment {
	return &models.Payment{
		ID:          uuid.New(),
		PayerID:     payerID,
		PayeeID:     payeeID,
		Amount:      money("100.00"),
		PlatformFee: money("10.00"),
		Currency:    enums.CurrencyUSD,
		Method:      enums.PaymentMethodWallet,
		Type:        enums.PaymentTypeProject,
		Status:      enums.PaymentStatusPending,
	}
}

func TestService_InitiateValidation(t *testing.T) {
	svc := newTestService(&fakeRepository{}, newFakeLedger(), nil, nil)
	payer := uuid.New()

	tests := []struct {
		name  string
		input InitiateInput
	}{
		{
			name: "same payer and payee",
			input: InitiateInput{
				PayerID: payer, PayeeID: payer,
				Amount: money("10.00"), Currency: enums.CurrencyUSD,
				Method: enums.PaymentMethodWallet, Type: enums.PaymentTypeProject,
			},
		},
		{
			name: "non-positive amount",
			input: InitiateInput{
				PayerID: payer, PayeeID: uuid.New(),
				Amount: money("0.00"), Currency: enums.CurrencyUSD,
				Method: enums.PaymentMethodWallet, Type: enums.PaymentTypeProject,
			},
		},
		{
			name: "negative fee",
			input: InitiateInput{
				PayerID: payer, PayeeID: uuid.New(),
				Amount: money("10.00"), PlatformFee: money("-1.00"),
				Currency: enums.CurrencyUSD,
				Method:   enums.PaymentMethodWallet, Type: enums.PaymentTypeProject,
			},
		},
		{
			name: "fee above amount",
			input: InitiateInput{
				PayerID: payer, PayeeID: uuid.New(),
				Amount: money("10.00"), PlatformFee: money("11.00"),
				Currency: enums.CurrencyUSD,
				Method:   enums.PaymentMethodWallet, Type: enums.PaymentTypeProject,
			},
		},
		{
			name: "milestone payment without references",
			input: InitiateInput{
				PayerID: payer, PayeeID: uuid.New(),
				Amount: money("10.00"), Currency: enums.CurrencyUSD,
				Method: enums.PaymentMethodWallet, Type: enums.PaymentTypeMilestone,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Initiate(context.Background(), tc.input)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestService_ProcessAppendsPayerDebit(t *testing.T) {
	ledger := newFakeLedger()
	payer := uuid.New()
	ledger.addWallet(payer)

	payment := pendingPayment(payer, uuid.New())
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	svc := newTestService(repo, ledger, nil, nil)
	got, err := svc.Process(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if got.Status != enums.PaymentStatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
	if got.LedgerEntryID == nil {
		t.Fatal("expected ledger entry to be linked")
	}
	if len(ledger.appended) != 1 {
		t.Fatalf("expected exactly one entry appended, got %d", len(ledger.appended))
	}
	debit := ledger.appended[0]
	if debit.Type != enums.LedgerEntryTypePayment {
		t.Fatalf("expected payment entry type, got %s", debit.Type)
	}
	if !debit.Amount.Equal(money("-100.00")) {
		t.Fatalf("expected full-amount debit -100.00, got %s", debit.Amount)
	}
}

func TestService_ProcessIdempotentWhileProcessing(t *testing.T) {
	ledger := newFakeLedger()
	payment := pendingPayment(uuid.New(), uuid.New())
	payment.Status = enums.PaymentStatusProcessing
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	svc := newTestService(repo, ledger, nil, nil)
	got, err := svc.Process(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if got.Status != enums.PaymentStatusProcessing {
		t.Fatalf("unexpected status %s", got.Status)
	}
	if len(ledger.appended) != 0 {
		t.Fatal("no entry may be appended twice")
	}
}

func TestService_ProcessRejectsTerminal(t *testing.T) {
	payment := pendingPayment(uuid.New(), uuid.New())
	payment.Status = enums.PaymentStatusCancelled
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	svc := newTestService(repo, newFakeLedger(), nil, nil)
	_, err := svc.Process(context.Background(), payment.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestService_SettleSuccessCreditsPayeeNetOfFee(t *testing.T) {
	ledger := newFakeLedger()
	payer, payee := uuid.New(), uuid.New()
	ledger.addWallet(payer)
	payeeWallet := ledger.addWallet(payee)

	entryID := uuid.New()
	payment := pendingPayment(payer, payee)
	payment.Status = enums.PaymentStatusProcessing
	payment.LedgerEntryID = &entryID

	repo := &fakeRepository{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	svc := newTestService(repo, ledger, nil, nil)
	got, err := svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, Success: true})
	if err != nil {
		t.Fatalf("Settle error: %v", err)
	}
	if got.Status != enums.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if ledger.settled[entryID] != enums.LedgerEntryStatusCompleted {
		t.Fatalf("payer entry must complete, got %s", ledger.settled[entryID])
	}
	if len(ledger.appended) != 1 {
		t.Fatalf("expected one payee credit, got %d entries", len(ledger.appended))
	}
	credit := ledger.appended[0]
	if credit.WalletID != payeeWallet.ID {
		t.Fatal("credit must land on the payee wallet")
	}
	if !credit.Amount.Equal(money("90.00")) {
		t.Fatalf("expected net credit 90.00, got %s", credit.Amount)
	}
}

func TestService_SettleFailureCancelsEntry(t *testing.T) {
	ledger := newFakeLedger()
	entryID := uuid.New()
	payment := pendingPayment(uuid.New(), uuid.New())
	payment.Status = enums.PaymentStatusProcessing
	payment.LedgerEntryID = &entryID

	repo := &fakeRepository{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	reason := "card declined"
	svc := newTestService(repo, ledger, nil, nil)
	got, err := svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, Success: false, Reason: &reason})
	if err != nil {
		t.Fatalf("Settle error: %v", err)
	}
	if got.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.FailureReason == nil || *got.FailureReason != reason {
		t.Fatalf("expected stored failure reason, got %v", got.FailureReason)
	}
	if ledger.settled[entryID] != enums.LedgerEntryStatusCancelled {
		t.Fatalf("entry must be cancelled, got %s", ledger.settled[entryID])
	}
	if len(ledger.appended) != 0 {
		t.Fatal("no payee credit on failure")
	}
}

func TestService_SettleRetriesTransientCaptureErrors(t *testing.T) {
	ledger := newFakeLedger()
	payer, payee := uuid.New(), uuid.New()
	ledger.addWallet(payer)
	ledger.addWallet(payee)

	entryID := uuid.New()
	payment := pendingPayment(payer, payee)
	payment.Status = enums.PaymentStatusProcessing
	payment.LedgerEntryID = &entryID

	repo := &fakeRepository{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	processor := &fakeProcessor{errs: []error{
		pkgerrors.New(pkgerrors.CodeDependency, "gateway timeout"),
		pkgerrors.New(pkgerrors.CodeDependency, "gateway timeout"),
	}}

	svc := newTestService(repo, ledger, nil, processor)
	got, err := svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, Success: true})
	if err != nil {
		t.Fatalf("Settle error: %v", err)
	}
	if processor.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", processor.calls)
	}
	if got.Status != enums.PaymentStatusCompleted {
		t.Fatalf("expected completed after retry, got %s", got.Status)
	}
}

func TestService_SettleExhaustedRetriesMarksFailed(t *testing.T) {
	ledger := newFakeLedger()
	payer, payee := uuid.New(), uuid.New()
	ledger.addWallet(payer)
	ledger.addWallet(payee)

	entryID := uuid.New()
	payment := pendingPayment(payer, payee)
	payment.Status = enums.PaymentStatusProcessing
	payment.LedgerEntryID = &entryID

	repo := &fakeRepository{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	transient := pkgerrors.New(pkgerrors.CodeDependency, "gateway timeout")
	processor := &fakeProcessor{errs: []error{transient, transient, transient}}

	svc := newTestService(repo, ledger, nil, processor)
	got, err := svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, Success: true})
	if !pkgerrors.IsCode(err, pkgerrors.CodeSettlementFailure) {
		t.Fatalf("expected SETTLEMENT_FAILURE, got %v", err)
	}
	if processor.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", processor.calls)
	}
	if got == nil || got.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected payment marked failed, got %+v", got)
	}
	if ledger.settled[entryID] != enums.LedgerEntryStatusCancelled {
		t.Fatalf("entry must be cancelled on capture failure, got %s", ledger.settled[entryID])
	}
}

func TestService_SettleIdempotentWhenAlreadyTerminal(t *testing.T) {
	payment := pendingPayment(uuid.New(), uuid.New())
	payment.Status = enums.PaymentStatusCompleted
	repo := &fakeRepository{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	svc := newTestService(repo, newFakeLedger(), nil, nil)
	got, err := svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, Success: true})
	if err != nil {
		t.Fatalf("expected idempotent no-op, got %v", err)
	}
	if got.Status != enums.PaymentStatusCompleted {
		t.Fatalf("unexpected status %s", got.Status)
	}

	_, err = svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, Success: false})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT on conflicting outcome, got %v", err)
	}
}

func TestService_SettleMarksMilestonePaid(t *testing.T) {
	ledger := newFakeLedger()
	payer, payee := uuid.New(), uuid.New()
	ledger.addWallet(payer)
	ledger.addWallet(payee)

	entryID := uuid.New()
	milestoneID := uuid.New()
	contractID := uuid.New()
	payment := pendingPayment(payer, payee)
	payment.Status = enums.PaymentStatusProcessing
	payment.LedgerEntryID = &entryID
	payment.MilestoneID = &milestoneID
	payment.ContractID = &contractID
	payment.Type = enums.PaymentTypeMilestone

	repo := &fakeRepository{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	marker := &fakeMarker{}
	svc := newTestService(repo, ledger, marker, nil)
	if _, err := svc.Settle(context.Background(), SettleInput{PaymentID: payment.ID, Success: true}); err != nil {
		t.Fatalf("Settle error: %v", err)
	}
	if marker.paid[milestoneID] != payment.ID {
		t.Fatal("milestone must be marked paid with the payment id")
	}
}

func TestService_CancelOnlyFromPending(t *testing.T) {
	payment := pendingPayment(uuid.New(), uuid.New())
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	svc := newTestService(repo, newFakeLedger(), nil, nil)
	got, err := svc.Cancel(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got.Status != enums.PaymentStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	payment.Status = enums.PaymentStatusProcessing
	_, err = svc.Cancel(context.Background(), payment.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("cancel mid-settlement must be rejected, got %v", err)
	}
}

func TestService_RefundReversesBothSides(t *testing.T) {
	ledger := newFakeLedger()
	payer, payee := uuid.New(), uuid.New()
	payerWallet := ledger.addWallet(payer)
	payeeWallet := ledger.addWallet(payee)

	payment := pendingPayment(payer, payee)
	payment.Status = enums.PaymentStatusCompleted
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	svc := newTestService(repo, ledger, nil, nil)
	got, err := svc.Refund(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("Refund error: %v", err)
	}
	if got.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected refunded, got %s", got.Status)
	}
	if len(ledger.appended) != 2 {
		t.Fatalf("expected refund + clawback entries, got %d", len(ledger.appended))
	}
	refund, clawback := ledger.appended[0], ledger.appended[1]
	if refund.WalletID != payerWallet.ID || !refund.Amount.Equal(money("100.00")) || refund.Type != enums.LedgerEntryTypeRefund {
		t.Fatalf("unexpected refund entry: %+v", refund)
	}
	if clawback.WalletID != payeeWallet.ID || !clawback.Amount.Equal(money("-90.00")) {
		t.Fatalf("unexpected clawback entry: %+v", clawback)
	}
}

func TestService_DisputeOnlyFromCompleted(t *testing.T) {
	payment := pendingPayment(uuid.New(), uuid.New())
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return payment, nil
		},
	}

	svc := newTestService(repo, newFakeLedger(), nil, nil)
	_, err := svc.Dispute(context.Background(), payment.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}

	payment.Status = enums.PaymentStatusCompleted
	got, err := svc.Dispute(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("Dispute error: %v", err)
	}
	if got.Status != enums.PaymentStatusDisputed {
		t.Fatalf("expected disputed, got %s", got.Status)
	}
}
