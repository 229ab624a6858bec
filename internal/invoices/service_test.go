package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gigbridge/gigbridge-backend/pkg/config"
	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	"github.com/gigbridge/gigbridge-backend/pkg/enums"
	pkgerrors "github.com/gigbridge/gigbridge-backend/pkg/errors"
	"github.com/gigbridge/gigbridge-backend/pkg/logger"
	"github.com/gigbridge/gigbridge-backend/pkg/pagination"
)

type fakeRepository struct {
	invoices        map[uuid.UUID]*models.Invoice
	byNumber        map[string]*models.Invoice
	overdue         int64
	findByNumberErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		invoices: map[uuid.UUID]*models.Invoice{},
		byNumber: map[string]*models.Invoice{},
	}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if _, ok := f.byNumber[invoice.Number]; ok {
		return gorm.ErrDuplicatedKey
	}
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	f.invoices[invoice.ID] = invoice
	f.byNumber[invoice.Number] = invoice
	return nil
}

func (f *fakeRepository) Find(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, ok := f.invoices[invoiceID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return invoice, nil
}

func (f *fakeRepository) FindForUpdate(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return f.Find(ctx, invoiceID)
}

func (f *fakeRepository) FindByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	if f.findByNumberErr != nil {
		return nil, f.findByNumberErr
	}
	invoice, ok := f.byNumber[number]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return invoice, nil
}

func (f *fakeRepository) Update(ctx context.Context, invoiceID uuid.UUID, fields map[string]any) error {
	return nil
}

func (f *fakeRepository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*InvoiceList, error) {
	return &InvoiceList{}, nil
}

func (f *fakeRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	return f.overdue, nil
}

type fakePayments struct {
	payments map[uuid.UUID]*models.Payment
}

func (f *fakePayments) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, ok := f.payments[paymentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func money(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(t *testing.T, repo Repository, payments PaymentSource, taxRate string) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
		Repo:     repo,
		TxRunner: stubTxRunner{},
		Payments: payments,
		Invoicing: config.InvoicingConfig{
			TaxRate: taxRate,
			DueIn:   720 * time.Hour,
		},
	})
	require.NoError(t, err)
	return svc
}

func completedPayment(clientID, freelancerID uuid.UUID, amount string) *models.Payment {
	return &models.Payment{
		ID:       uuid.New(),
		PayerID:  clientID,
		PayeeID:  freelancerID,
		Amount:   money(amount),
		Currency: enums.CurrencyUSD,
		Status:   enums.PaymentStatusCompleted,
	}
}

func TestService_GenerateComputesTotals(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	p1 := completedPayment(client, freelancer, "100.00")
	p2 := completedPayment(client, freelancer, "250.00")
	payments := &fakePayments{payments: map[uuid.UUID]*models.Payment{p1.ID: p1, p2.ID: p2}}

	svc := newTestService(t, newFakeRepository(), payments, "0.10")
	invoice, err := svc.Generate(context.Background(), GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{p1.ID, p2.ID},
		Discount:     money("5.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, enums.InvoiceStatusDraft, invoice.Status)
	assert.True(t, invoice.Subtotal.Equal(money("350.00")), "subtotal %s", invoice.Subtotal)
	assert.True(t, invoice.TaxAmount.Equal(money("35.00")), "tax %s", invoice.TaxAmount)
	assert.True(t, invoice.Total.Equal(money("380.00")), "total %s", invoice.Total)
	assert.Len(t, invoice.LineItems, 2)
	assert.True(t, invoice.DueDate.After(invoice.IssuedAt))
}

func TestService_GenerateIdempotent(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	p1 := completedPayment(client, freelancer, "100.00")
	p2 := completedPayment(client, freelancer, "250.00")
	payments := &fakePayments{payments: map[uuid.UUID]*models.Payment{p1.ID: p1, p2.ID: p2}}

	repo := newFakeRepository()
	svc := newTestService(t, repo, payments, "0.10")

	first, err := svc.Generate(context.Background(), GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{p1.ID, p2.ID},
	})
	require.NoError(t, err)

	// Same set, reversed order: must resolve to the stored invoice.
	second, err := svc.Generate(context.Background(), GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{p2.ID, p1.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, first.Number, second.Number)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.Total.Equal(second.Total))
	assert.Len(t, repo.invoices, 1)
}

func TestService_GenerateDiscountChangesNumber(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	p1 := completedPayment(client, freelancer, "100.00")
	p2 := completedPayment(client, freelancer, "250.00")
	payments := &fakePayments{payments: map[uuid.UUID]*models.Payment{p1.ID: p1, p2.ID: p2}}

	repo := newFakeRepository()
	svc := newTestService(t, repo, payments, "0.00")
	ctx := context.Background()

	first, err := svc.Generate(ctx, GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{p1.ID, p2.ID},
	})
	require.NoError(t, err)

	// Same payment set, different discount: a new invoice with new totals,
	// not a silent replay of the stored one.
	second, err := svc.Generate(ctx, GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{p1.ID, p2.ID},
		Discount:     money("10.00"),
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.Number, second.Number)
	assert.True(t, first.Total.Equal(money("350.00")), "first total %s", first.Total)
	assert.True(t, second.Total.Equal(money("340.00")), "second total %s", second.Total)
	assert.Len(t, repo.invoices, 2)
}

func TestService_GenerateDuplicateLookupFailure(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	payment := completedPayment(client, freelancer, "100.00")
	payments := &fakePayments{payments: map[uuid.UUID]*models.Payment{payment.ID: payment}}

	repo := newFakeRepository()
	svc := newTestService(t, repo, payments, "0.00")
	ctx := context.Background()

	input := GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{payment.ID},
	}
	_, err := svc.Generate(ctx, input)
	require.NoError(t, err)

	// Second run hits the unique violation, then the stored-invoice lookup
	// fails; the error must surface instead of a half-built invoice.
	repo.findByNumberErr = gorm.ErrInvalidDB
	invoice, err := svc.Generate(ctx, input)
	assert.Nil(t, invoice)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal), "got %v", err)
}

func TestService_GenerateRejectsUnfinishedPayments(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	payment := completedPayment(client, freelancer, "100.00")
	payment.Status = enums.PaymentStatusProcessing
	payments := &fakePayments{payments: map[uuid.UUID]*models.Payment{payment.ID: payment}}

	svc := newTestService(t, newFakeRepository(), payments, "0.00")
	_, err := svc.Generate(context.Background(), GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{payment.ID},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestService_GenerateRejectsForeignPayments(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	payment := completedPayment(uuid.New(), freelancer, "100.00")
	payments := &fakePayments{payments: map[uuid.UUID]*models.Payment{payment.ID: payment}}

	svc := newTestService(t, newFakeRepository(), payments, "0.00")
	_, err := svc.Generate(context.Background(), GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{payment.ID},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestService_GenerateRejectsMixedCurrencies(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	p1 := completedPayment(client, freelancer, "100.00")
	p2 := completedPayment(client, freelancer, "250.00")
	p2.Currency = enums.CurrencyEUR
	payments := &fakePayments{payments: map[uuid.UUID]*models.Payment{p1.ID: p1, p2.ID: p2}}

	svc := newTestService(t, newFakeRepository(), payments, "0.00")
	_, err := svc.Generate(context.Background(), GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{p1.ID, p2.ID},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestService_GenerateRejectsExcessiveDiscount(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	payment := completedPayment(client, freelancer, "100.00")
	payments := &fakePayments{payments: map[uuid.UUID]*models.Payment{payment.ID: payment}}

	svc := newTestService(t, newFakeRepository(), payments, "0.00")
	_, err := svc.Generate(context.Background(), GenerateInput{
		ClientID:     client,
		FreelancerID: freelancer,
		PaymentIDs:   []uuid.UUID{payment.ID},
		Discount:     money("150.00"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestService_StatusTransitions(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(t, repo, &fakePayments{}, "0.00")
	ctx := context.Background()

	invoice := &models.Invoice{ID: uuid.New(), Number: "INV-TEST1", Status: enums.InvoiceStatusDraft}
	repo.invoices[invoice.ID] = invoice
	repo.byNumber[invoice.Number] = invoice

	sent, err := svc.MarkSent(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusSent, sent.Status)

	viewed, err := svc.MarkViewed(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusViewed, viewed.Status)

	paid, err := svc.MarkPaid(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusPaid, paid.Status)

	// Paid is terminal for cancellation.
	_, err = svc.Cancel(ctx, invoice.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	// Re-marking paid is a no-op.
	again, err := svc.MarkPaid(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusPaid, again.Status)
}

func TestService_MarkViewedRequiresSent(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(t, repo, &fakePayments{}, "0.00")

	invoice := &models.Invoice{ID: uuid.New(), Number: "INV-TEST2", Status: enums.InvoiceStatusDraft}
	repo.invoices[invoice.ID] = invoice

	_, err := svc.MarkViewed(context.Background(), invoice.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestService_OverduePayableAndAdvance(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(t, repo, &fakePayments{}, "0.00")
	ctx := context.Background()

	repo.overdue = 3
	moved, err := svc.AdvanceOverdue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved)

	invoice := &models.Invoice{ID: uuid.New(), Number: "INV-TEST3", Status: enums.InvoiceStatusOverdue}
	repo.invoices[invoice.ID] = invoice

	paid, err := svc.MarkPaid(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusPaid, paid.Status)
}
