package invoices

import (
	"context"
	"crypto/sha256"
	stdErrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gigbridge/gigbridge-backend/pkg/config"
	"github.com/gigbridge/gigbridge-backend/pkg/db"
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

// PaymentSource resolves the payments an invoice summarizes.
type PaymentSource interface {
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
}

// ServiceParams wires the invoice service dependencies.
type ServiceParams struct {
	Logger    *logger.Logger
	Repo      Repository
	TxRunner  TxRunner
	Payments  PaymentSource
	Invoicing config.InvoicingConfig
}

// Service derives invoices from completed payments. Invoices are
// presentational summaries; they never move money and are never
// authoritative over wallet balances.
type Service struct {
	logger   *logger.Logger
	repo     Repository
	txRunner TxRunner
	payments PaymentSource
	taxRate  decimal.Decimal
	dueIn    time.Duration

	now func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	taxRate := decimal.Zero
	if params.Invoicing.TaxRate != "" {
		parsed, err := decimal.NewFromString(params.Invoicing.TaxRate)
		if err != nil {
			return nil, fmt.Errorf("invalid invoice tax rate %q: %w", params.Invoicing.TaxRate, err)
		}
		if parsed.IsNegative() {
			return nil, fmt.Errorf("invoice tax rate must not be negative")
		}
		taxRate = parsed
	}

	dueIn := params.Invoicing.DueIn
	if dueIn <= 0 {
		dueIn = 30 * 24 * time.Hour
	}

	return &Service{
		logger:   params.Logger,
		repo:     params.Repo,
		txRunner: params.TxRunner,
		payments: params.Payments,
		taxRate:  taxRate,
		dueIn:    dueIn,
		now:      time.Now,
	}, nil
}

// GenerateInput describes an invoice to derive from completed payments.
type GenerateInput struct {
	ClientID     uuid.UUID
	FreelancerID uuid.UUID
	PaymentIDs   []uuid.UUID
	Discount     decimal.Decimal
}

// Generate builds an invoice over the given completed payments. Totals are
// deterministic: subtotal is the sum of payment amounts, tax is subtotal
// times the configured rate, total is subtotal plus tax minus discount. The
// invoice number is derived from the sorted payment set and the discount, so
// re-running on identical input returns the already-stored invoice instead of
// a duplicate, while a changed discount yields a fresh invoice.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (*models.Invoice, error) {
	if err := validateGenerateInput(input); err != nil {
		return nil, err
	}

	ids := dedupeSorted(input.PaymentIDs)

	var currency enums.Currency
	items := make([]models.InvoiceLineItem, 0, len(ids))
	subtotal := decimal.Zero
	for _, id := range ids {
		payment, err := s.payments.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if payment.Status != enums.PaymentStatusCompleted {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoices cover completed payments only").
				WithDetails(map[string]any{"payment_id": id, "status": payment.Status})
		}
		if payment.PayerID != input.ClientID || payment.PayeeID != input.FreelancerID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to the client/freelancer pair").
				WithDetails(map[string]any{"payment_id": id})
		}
		if currency == "" {
			currency = payment.Currency
		} else if payment.Currency != currency {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payments on one invoice must share a currency")
		}

		subtotal = subtotal.Add(payment.Amount)
		description := string(payment.Type) + " payment"
		items = append(items, models.InvoiceLineItem{
			PaymentID:   payment.ID,
			Description: description,
			Amount:      payment.Amount,
		})
	}

	taxAmount := subtotal.Mul(s.taxRate).Round(2)
	total := subtotal.Add(taxAmount).Sub(input.Discount)
	if total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds invoice total")
	}

	number := invoiceNumber(input.ClientID, input.FreelancerID, ids, input.Discount)
	issuedAt := s.now().UTC()

	invoice := &models.Invoice{
		Number:       number,
		ClientID:     input.ClientID,
		FreelancerID: input.FreelancerID,
		Status:       enums.InvoiceStatusDraft,
		Subtotal:     subtotal,
		TaxRate:      s.taxRate,
		TaxAmount:    taxAmount,
		Discount:     input.Discount,
		Total:        total,
		Currency:     currency,
		IssuedAt:     issuedAt,
		DueDate:      issuedAt.Add(s.dueIn),
		LineItems:    items,
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, invoice)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindByNumber(ctx, number)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "loading existing invoice")
			}
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating invoice")
	}

	ctx = s.logger.WithField(ctx, "invoice_number", number)
	s.logger.Info(ctx, "invoice generated")
	return invoice, nil
}

// Get fetches an invoice with its line items.
func (s *Service) Get(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.Find(ctx, invoiceID)
	if err != nil {
		return nil, invoiceLookupError(err)
	}
	return invoice, nil
}

// List pages through invoices matching the filters.
func (s *Service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*InvoiceList, error) {
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing invoices")
	}
	return list, nil
}

// MarkSent moves a draft invoice to sent.
func (s *Service) MarkSent(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.transition(ctx, invoiceID, enums.InvoiceStatusSent, "sent_at",
		enums.InvoiceStatusDraft)
}

// MarkViewed records that the client opened a sent invoice.
func (s *Service) MarkViewed(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.transition(ctx, invoiceID, enums.InvoiceStatusViewed, "viewed_at",
		enums.InvoiceStatusSent)
}

// MarkPaid closes an invoice once its payments have settled. Overdue
// invoices can still be paid.
func (s *Service) MarkPaid(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.transition(ctx, invoiceID, enums.InvoiceStatusPaid, "paid_at",
		enums.InvoiceStatusSent, enums.InvoiceStatusViewed, enums.InvoiceStatusOverdue)
}

// Cancel voids an invoice that has not been paid.
func (s *Service) Cancel(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.transition(ctx, invoiceID, enums.InvoiceStatusCancelled, "",
		enums.InvoiceStatusDraft, enums.InvoiceStatusSent, enums.InvoiceStatusViewed, enums.InvoiceStatusOverdue)
}

// AdvanceOverdue flips every sent or viewed invoice past its due date to
// overdue, returning how many moved. Run periodically by the cron worker.
func (s *Service) AdvanceOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	moved, err := s.repo.MarkOverdue(ctx, asOf)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing overdue invoices")
	}
	if moved > 0 {
		ctx = s.logger.WithField(ctx, "count", moved)
		s.logger.Info(ctx, "invoices moved to overdue")
	}
	return moved, nil
}

func (s *Service) transition(ctx context.Context, invoiceID uuid.UUID, target enums.InvoiceStatus, stampField string, allowedFrom ...enums.InvoiceStatus) (*models.Invoice, error) {
	var invoice *models.Invoice
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindForUpdate(ctx, invoiceID)
		if err != nil {
			return invoiceLookupError(err)
		}
		if locked.Status == target {
			invoice = locked
			return nil
		}

		allowed := false
		for _, from := range allowedFrom {
			if locked.Status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice transition disallowed").
				WithDetails(map[string]any{"from": locked.Status, "to": target})
		}

		fields := map[string]any{"status": target}
		if stampField != "" {
			fields[stampField] = s.now().UTC()
		}
		if err := repo.Update(ctx, locked.ID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating invoice")
		}
		locked.Status = target
		invoice = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func validateGenerateInput(input GenerateInput) error {
	if input.ClientID == uuid.Nil || input.FreelancerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client and freelancer are required")
	}
	if len(input.PaymentIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one payment is required")
	}
	if input.Discount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount must not be negative")
	}
	return nil
}

func dedupeSorted(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].String(), out[j].String()) < 0
	})
	return out
}

// invoiceNumber derives a stable number from the pair, the payment set, and
// the discount. The discount participates so a regenerate with different
// totals cannot collide with a stored invoice.
func invoiceNumber(clientID, freelancerID uuid.UUID, ids []uuid.UUID, discount decimal.Decimal) string {
	h := sha256.New()
	h.Write(clientID[:])
	h.Write(freelancerID[:])
	for _, id := range ids {
		h.Write(id[:])
	}
	h.Write([]byte(discount.StringFixed(2)))
	return fmt.Sprintf("INV-%X", h.Sum(nil)[:6])
}

func invoiceLookupError(err error) error {
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading invoice")
}
