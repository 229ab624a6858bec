package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gigbridge/gigbridge-backend/api/responses"
	"github.com/gigbridge/gigbridge-backend/api/validators"
	"github.com/gigbridge/gigbridge-backend/internal/wallets"
	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	"github.com/gigbridge/gigbridge-backend/pkg/enums"
	pkgerrors "github.com/gigbridge/gigbridge-backend/pkg/errors"
	"github.com/gigbridge/gigbridge-backend/pkg/logger"
	"github.com/gigbridge/gigbridge-backend/pkg/pagination"
)

// WalletService is the wallet surface the controllers consume.
type WalletService interface {
	GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListEntries(ctx context.Context, walletID uuid.UUID, params pagination.Params, filters wallets.EntryFilters) (*wallets.EntryList, error)
	AppendEntry(ctx context.Context, input wallets.AppendEntryInput) (*models.LedgerEntry, error)
	SettleEntry(ctx context.Context, entryID uuid.UUID, outcome enums.LedgerEntryStatus) (*models.LedgerEntry, error)
}

func WalletMe(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := svc.GetWalletByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

func WalletEntries(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := svc.GetWalletByUser(r.Context(), userID)
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

		filters, err := buildEntryFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListEntries(r.Context(), wallet.ID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries"))
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type walletMovementRequest struct {
	Amount      string  `json:"amount" validate:"required"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// WalletDeposit credits the caller's wallet. The entry is appended pending and
// settled completed in the same request.
func WalletDeposit(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return walletMovement(svc, logg, enums.LedgerEntryTypeDeposit, false)
}

// WalletWithdraw debits the caller's wallet, subject to the overdraft guard.
func WalletWithdraw(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return walletMovement(svc, logg, enums.LedgerEntryTypeWithdrawal, true)
}

func walletMovement(svc WalletService, logg *logger.Logger, entryType enums.LedgerEntryType, negate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req walletMovementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !amount.IsPositive() {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive"))
			return
		}
		if negate {
			amount = amount.Neg()
		}

		wallet, err := svc.GetWalletByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.AppendEntry(r.Context(), wallets.AppendEntryInput{
			WalletID:    wallet.ID,
			Type:        entryType,
			Amount:      amount,
			Currency:    wallet.Currency,
			Description: req.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		settled, err := svc.SettleEntry(r.Context(), entry.ID, enums.LedgerEntryStatusCompleted)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, settled)
	}
}

func buildEntryFilters(r *http.Request) (wallets.EntryFilters, error) {
	var filters wallets.EntryFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		entryType, err := enums.ParseLedgerEntryType(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry type filter")
		}
		filters.Type = &entryType
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseLedgerEntryStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry status filter")
		}
		filters.Status = &status
	}
	return filters, nil
}
