package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/gigbridge-backend/api/middleware"
	"github.com/gigbridge/gigbridge-backend/api/responses"
	"github.com/gigbridge/gigbridge-backend/api/validators"
	"github.com/gigbridge/gigbridge-backend/internal/payments"
	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	"github.com/gigbridge/gigbridge-backend/pkg/enums"
	pkgerrors "github.com/gigbridge/gigbridge-backend/pkg/errors"
	"github.com/gigbridge/gigbridge-backend/pkg/logger"
	"github.com/gigbridge/gigbridge-backend/pkg/pagination"
)

// PaymentService is the payment surface the controllers consume.
type PaymentService interface {
	Initiate(ctx context.Context, input payments.InitiateInput) (*models.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters payments.ListFilters) (*payments.PaymentList, error)
	Process(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	Settle(ctx context.Context, input payments.SettleInput) (*models.Payment, error)
	Cancel(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	Refund(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	Dispute(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
}

type createPaymentRequest struct {
	PayeeID     string  `json:"payee_id" validate:"required,uuid"`
	Amount      string  `json:"amount" validate:"required"`
	PlatformFee string  `json:"platform_fee"`
	Currency    string  `json:"currency" validate:"required"`
	Method      string  `json:"method" validate:"required"`
	Type        string  `json:"type" validate:"required"`
	ProjectID   *string `json:"project_id" validate:"omitempty,uuid"`
	ContractID  *string `json:"contract_id" validate:"omitempty,uuid"`
	MilestoneID *string `json:"milestone_id" validate:"omitempty,uuid"`
}

// PaymentCreate initiates a payment with the caller as payer.
func PaymentCreate(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payerID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := buildInitiateInput(payerID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Initiate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payment)
	}
}

func PaymentDetail(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := parsePathID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payment.PayerID != userID && payment.PayeeID != userID &&
			middleware.RoleFromContext(r.Context()) != string(enums.UserRoleAdmin) {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeForbidden, "payment does not involve caller"))
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func PaymentList(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
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

		filters, err := buildPaymentFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByUser(r.Context(), userID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments"))
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func PaymentProcess(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return paymentAction(logg, svc.Process)
}

type settlePaymentRequest struct {
	Success bool    `json:"success"`
	Reason  *string `json:"reason" validate:"omitempty,max=500"`
}

func PaymentSettle(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := parsePathID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req settlePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Settle(r.Context(), payments.SettleInput{
			PaymentID: paymentID,
			Success:   req.Success,
			Reason:    req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func PaymentCancel(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return paymentAction(logg, svc.Cancel)
}

func PaymentRefund(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return paymentAction(logg, svc.Refund)
}

func PaymentDispute(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return paymentAction(logg, svc.Dispute)
}

func paymentAction(logg *logger.Logger, action func(context.Context, uuid.UUID) (*models.Payment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := parsePathID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := action(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func buildInitiateInput(payerID uuid.UUID, req createPaymentRequest) (payments.InitiateInput, error) {
	var input payments.InitiateInput

	payeeID, err := uuid.Parse(req.PayeeID)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payee id")
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return input, err
	}
	fee := decimal.Zero
	if strings.TrimSpace(req.PlatformFee) != "" {
		fee, err = parseAmount("platform_fee", req.PlatformFee)
		if err != nil {
			return input, err
		}
	}
	currency, err := enums.ParseCurrency(req.Currency)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}
	method, err := enums.ParsePaymentMethod(req.Method)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	paymentType, err := enums.ParsePaymentType(req.Type)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment type")
	}
	projectID, err := parseOptionalUUID(req.ProjectID)
	if err != nil {
		return input, err
	}
	contractID, err := parseOptionalUUID(req.ContractID)
	if err != nil {
		return input, err
	}
	milestoneID, err := parseOptionalUUID(req.MilestoneID)
	if err != nil {
		return input, err
	}

	return payments.InitiateInput{
		PayerID:     payerID,
		PayeeID:     payeeID,
		ProjectID:   projectID,
		ContractID:  contractID,
		MilestoneID: milestoneID,
		Amount:      amount,
		PlatformFee: fee,
		Currency:    currency,
		Method:      method,
		Type:        paymentType,
	}, nil
}

func buildPaymentFilters(r *http.Request) (payments.ListFilters, error) {
	var filters payments.ListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("contract_id")); raw != "" {
		contractID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid contract filter")
		}
		filters.ContractID = &contractID
	}
	return filters, nil
}
