package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/gigbridge-backend/internal/payments"
	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	"github.com/gigbridge/gigbridge-backend/pkg/enums"
	pkgerrors "github.com/gigbridge/gigbridge-backend/pkg/errors"
	"github.com/gigbridge/gigbridge-backend/pkg/pagination"
)

type fakePaymentService struct {
	payment   *models.Payment
	initiated []payments.InitiateInput
	settled   []payments.SettleInput
	processed []uuid.UUID
}

func (f *fakePaymentService) Initiate(_ context.Context, input payments.InitiateInput) (*models.Payment, error) {
	f.initiated = append(f.initiated, input)
	return &models.Payment{
		ID:      uuid.New(),
		PayerID: input.PayerID,
		PayeeID: input.PayeeID,
		Amount:  input.Amount,
		Status:  enums.PaymentStatusPending,
	}, nil
}

func (f *fakePaymentService) Get(_ context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if f.payment == nil || f.payment.ID != paymentID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return f.payment, nil
}

func (f *fakePaymentService) ListByUser(_ context.Context, _ uuid.UUID, _ pagination.Params, _ payments.ListFilters) (*payments.PaymentList, error) {
	return &payments.PaymentList{}, nil
}

func (f *fakePaymentService) Process(_ context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	f.processed = append(f.processed, paymentID)
	return &models.Payment{ID: paymentID, Status: enums.PaymentStatusProcessing}, nil
}

func (f *fakePaymentService) Settle(_ context.Context, input payments.SettleInput) (*models.Payment, error) {
	f.settled = append(f.settled, input)
	return &models.Payment{ID: input.PaymentID, Status: enums.PaymentStatusCompleted}, nil
}

func (f *fakePaymentService) Cancel(_ context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	return &models.Payment{ID: paymentID, Status: enums.PaymentStatusCancelled}, nil
}

func (f *fakePaymentService) Refund(_ context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	return &models.Payment{ID: paymentID, Status: enums.PaymentStatusRefunded}, nil
}

func (f *fakePaymentService) Dispute(_ context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	return &models.Payment{ID: paymentID, Status: enums.PaymentStatusDisputed}, nil
}

func withPathParam(r *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func TestPaymentCreateUsesCallerAsPayer(t *testing.T) {
	payerID := uuid.New()
	payeeID := uuid.New()
	svc := &fakePaymentService{}

	body := `{"payee_id":"` + payeeID.String() + `","amount":"150.00","platform_fee":"15.00","currency":"usd","method":"wallet","type":"project"}`
	req := authedRequest(http.MethodPost, "/api/v1/payments", body, payerID, enums.UserRoleClient)
	resp := httptest.NewRecorder()
	PaymentCreate(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.initiated) != 1 {
		t.Fatalf("expected 1 initiate, got %d", len(svc.initiated))
	}
	input := svc.initiated[0]
	if input.PayerID != payerID {
		t.Fatalf("expected payer %s, got %s", payerID, input.PayerID)
	}
	if input.PayeeID != payeeID {
		t.Fatalf("expected payee %s, got %s", payeeID, input.PayeeID)
	}
	if !input.Amount.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("expected amount 150.00, got %s", input.Amount)
	}
	if !input.PlatformFee.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("expected fee 15.00, got %s", input.PlatformFee)
	}
}

func TestPaymentCreateRejectsUnknownMethod(t *testing.T) {
	svc := &fakePaymentService{}
	body := `{"payee_id":"` + uuid.NewString() + `","amount":"10.00","currency":"usd","method":"cash","type":"project"}`
	req := authedRequest(http.MethodPost, "/api/v1/payments", body, uuid.New(), enums.UserRoleClient)
	resp := httptest.NewRecorder()
	PaymentCreate(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if len(svc.initiated) != 0 {
		t.Fatal("initiate should not run for invalid method")
	}
}

func TestPaymentSettlePassesOutcome(t *testing.T) {
	paymentID := uuid.New()
	svc := &fakePaymentService{}

	req := authedRequest(http.MethodPost, "/api/v1/payments/"+paymentID.String()+"/settle",
		`{"success":false,"reason":"card declined"}`, uuid.New(), enums.UserRoleAdmin)
	req = withPathParam(req, "paymentId", paymentID.String())
	resp := httptest.NewRecorder()
	PaymentSettle(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.settled) != 1 {
		t.Fatalf("expected 1 settle, got %d", len(svc.settled))
	}
	input := svc.settled[0]
	if input.PaymentID != paymentID || input.Success {
		t.Fatalf("unexpected settle input %+v", input)
	}
	if input.Reason == nil || *input.Reason != "card declined" {
		t.Fatalf("expected reason to pass through, got %v", input.Reason)
	}
}

func TestPaymentDetailHidesForeignPayments(t *testing.T) {
	paymentID := uuid.New()
	svc := &fakePaymentService{payment: &models.Payment{
		ID:      paymentID,
		PayerID: uuid.New(),
		PayeeID: uuid.New(),
	}}

	req := authedRequest(http.MethodGet, "/api/v1/payments/"+paymentID.String(), "", uuid.New(), enums.UserRoleClient)
	req = withPathParam(req, "paymentId", paymentID.String())
	resp := httptest.NewRecorder()
	PaymentDetail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestPaymentDetailAllowsAdmin(t *testing.T) {
	paymentID := uuid.New()
	svc := &fakePaymentService{payment: &models.Payment{
		ID:      paymentID,
		PayerID: uuid.New(),
		PayeeID: uuid.New(),
	}}

	req := authedRequest(http.MethodGet, "/api/v1/payments/"+paymentID.String(), "", uuid.New(), enums.UserRoleAdmin)
	req = withPathParam(req, "paymentId", paymentID.String())
	resp := httptest.NewRecorder()
	PaymentDetail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPaymentProcessRejectsMalformedID(t *testing.T) {
	svc := &fakePaymentService{}
	req := authedRequest(http.MethodPost, "/api/v1/payments/not-a-uuid/process", "", uuid.New(), enums.UserRoleClient)
	req = withPathParam(req, "paymentId", "not-a-uuid")
	resp := httptest.NewRecorder()
	PaymentProcess(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if len(svc.processed) != 0 {
		t.Fatal("process should not run for malformed id")
	}
}
