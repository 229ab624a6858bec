package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/gigbridge-backend/api/middleware"
	"github.com/gigbridge/gigbridge-backend/api/responses"
	"github.com/gigbridge/gigbridge-backend/api/validators"
	"github.com/gigbridge/gigbridge-backend/internal/invoices"
	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	"github.com/gigbridge/gigbridge-backend/pkg/enums"
	pkgerrors "github.com/gigbridge/gigbridge-backend/pkg/errors"
	"github.com/gigbridge/gigbridge-backend/pkg/logger"
	"github.com/gigbridge/gigbridge-backend/pkg/pagination"
)

// InvoiceService is the invoice surface the controllers consume.
type InvoiceService interface {
	Generate(ctx context.Context, input invoices.GenerateInput) (*models.Invoice, error)
	Get(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, params pagination.Params, filters invoices.ListFilters) (*invoices.InvoiceList, error)
	MarkSent(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	MarkViewed(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	MarkPaid(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	Cancel(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	AdvanceOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type generateInvoiceRequest struct {
	ClientID     string   `json:"client_id" validate:"required,uuid"`
	FreelancerID string   `json:"freelancer_id" validate:"required,uuid"`
	PaymentIDs   []string `json:"payment_ids" validate:"required,min=1,dive,uuid"`
	Discount     string   `json:"discount"`
}

func InvoiceCreate(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateInvoiceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := buildGenerateInput(req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.Generate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, invoice)
	}
}

func InvoiceDetail(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := parsePathID(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.Get(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if invoice.ClientID != userID && invoice.FreelancerID != userID &&
			middleware.RoleFromContext(r.Context()) != string(enums.UserRoleAdmin) {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeForbidden, "invoice does not involve caller"))
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

func InvoiceList(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters := invoices.ListFilters{}
		switch middleware.RoleFromContext(r.Context()) {
		case string(enums.UserRoleFreelancer):
			filters.FreelancerID = &userID
		case string(enums.UserRoleAdmin):
			// Admins see everything, optionally narrowed below.
		default:
			filters.ClientID = &userID
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseInvoiceStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}

		list, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices"))
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func InvoiceSend(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return invoiceAction(logg, svc.MarkSent)
}

func InvoiceView(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return invoiceAction(logg, svc.MarkViewed)
}

func InvoicePay(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return invoiceAction(logg, svc.MarkPaid)
}

func InvoiceCancel(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return invoiceAction(logg, svc.Cancel)
}

func invoiceAction(logg *logger.Logger, action func(context.Context, uuid.UUID) (*models.Invoice, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, err := parsePathID(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := action(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

func buildGenerateInput(req generateInvoiceRequest) (invoices.GenerateInput, error) {
	var input invoices.GenerateInput

	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client id")
	}
	freelancerID, err := uuid.Parse(req.FreelancerID)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid freelancer id")
	}

	paymentIDs := make([]uuid.UUID, 0, len(req.PaymentIDs))
	for _, raw := range req.PaymentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id")
		}
		paymentIDs = append(paymentIDs, id)
	}

	discount := decimal.Zero
	if strings.TrimSpace(req.Discount) != "" {
		discount, err = parseAmount("discount", req.Discount)
		if err != nil {
			return input, err
		}
	}

	return invoices.GenerateInput{
		ClientID:     clientID,
		FreelancerID: freelancerID,
		PaymentIDs:   paymentIDs,
		Discount:     discount,
	}, nil
}
