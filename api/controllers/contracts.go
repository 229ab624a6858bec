package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gigbridge/gigbridge-backend/api/responses"
	"github.com/gigbridge/gigbridge-backend/api/validators"
	"github.com/gigbridge/gigbridge-backend/internal/contracts"
	"github.com/gigbridge/gigbridge-backend/pkg/db/models"
	"github.com/gigbridge/gigbridge-backend/pkg/enums"
	pkgerrors "github.com/gigbridge/gigbridge-backend/pkg/errors"
	"github.com/gigbridge/gigbridge-backend/pkg/logger"
	"github.com/gigbridge/gigbridge-backend/pkg/pagination"
)

// ContractService is the contract surface the controllers consume.
type ContractService interface {
	Create(ctx context.Context, input contracts.CreateInput) (*models.Contract, error)
	Get(ctx context.Context, contractID uuid.UUID) (*models.Contract, error)
	ListByParty(ctx context.Context, userID uuid.UUID, params pagination.Params, status *enums.ContractStatus) (*contracts.ContractList, error)
	Sign(ctx context.Context, contractID uuid.UUID, actor contracts.Actor) (*models.Contract, error)
	Activate(ctx context.Context, contractID uuid.UUID, actor contracts.Actor) (*models.Contract, error)
	Complete(ctx context.Context, contractID uuid.UUID, actor contracts.Actor) (*models.Contract, error)
	Terminate(ctx context.Context, contractID uuid.UUID, actor contracts.Actor, reason string) (*models.Contract, error)
	StartMilestone(ctx context.Context, milestoneID uuid.UUID, actor contracts.Actor) (*models.Milestone, error)
	SubmitMilestone(ctx context.Context, milestoneID uuid.UUID, actor contracts.Actor) (*models.Milestone, error)
	ApproveMilestone(ctx context.Context, milestoneID uuid.UUID, actor contracts.Actor) (*models.Milestone, error)
	RejectMilestone(ctx context.Context, milestoneID uuid.UUID, actor contracts.Actor, feedback string) (*models.Milestone, error)
}

type milestoneRequest struct {
	Title        string   `json:"title" validate:"required,max=200"`
	Description  *string  `json:"description" validate:"omitempty,max=2000"`
	Deliverables []string `json:"deliverables" validate:"omitempty,dive,max=500"`
	Amount       string   `json:"amount" validate:"required"`
}

type createContractRequest struct {
	ProjectID    string             `json:"project_id" validate:"required,uuid"`
	FreelancerID string             `json:"freelancer_id" validate:"required,uuid"`
	Title        string             `json:"title" validate:"required,max=200"`
	Currency     string             `json:"currency" validate:"required"`
	Milestones   []milestoneRequest `json:"milestones" validate:"required,min=1,dive"`
}

// ContractCreate drafts a contract with the caller as client.
func ContractCreate(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createContractRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := buildContractInput(clientID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contract, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, contract)
	}
}

func ContractDetail(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contractID, err := parsePathID(r, "contractId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contract, err := svc.Get(r.Context(), contractID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if contract.ClientID != actor.ID && contract.FreelancerID != actor.ID &&
			actor.Role != enums.UserRoleAdmin {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeForbidden, "contract does not involve caller"))
			return
		}
		responses.WriteSuccess(w, contract)
	}
}

func ContractList(svc ContractService, logg *logger.Logger) http.HandlerFunc {
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

		var status *enums.ContractStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseContractStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		list, err := svc.ListByParty(r.Context(), userID, params, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list contracts"))
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ContractSign(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return contractAction(logg, svc.Sign)
}

func ContractActivate(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return contractAction(logg, svc.Activate)
}

func ContractComplete(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return contractAction(logg, svc.Complete)
}

type terminateContractRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func ContractTerminate(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contractID, err := parsePathID(r, "contractId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req terminateContractRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contract, err := svc.Terminate(r.Context(), contractID, actor, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contract)
	}
}

func MilestoneStart(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return milestoneAction(logg, svc.StartMilestone)
}

func MilestoneSubmit(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return milestoneAction(logg, svc.SubmitMilestone)
}

func MilestoneApprove(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return milestoneAction(logg, svc.ApproveMilestone)
}

type rejectMilestoneRequest struct {
	Feedback string `json:"feedback" validate:"required,max=2000"`
}

func MilestoneReject(svc ContractService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		milestoneID, err := parsePathID(r, "milestoneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req rejectMilestoneRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		milestone, err := svc.RejectMilestone(r.Context(), milestoneID, actor, req.Feedback)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, milestone)
	}
}

func contractAction(logg *logger.Logger, action func(context.Context, uuid.UUID, contracts.Actor) (*models.Contract, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contractID, err := parsePathID(r, "contractId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contract, err := action(r.Context(), contractID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contract)
	}
}

func milestoneAction(logg *logger.Logger, action func(context.Context, uuid.UUID, contracts.Actor) (*models.Milestone, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		milestoneID, err := parsePathID(r, "milestoneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		milestone, err := action(r.Context(), milestoneID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, milestone)
	}
}

func buildContractInput(clientID uuid.UUID, req createContractRequest) (contracts.CreateInput, error) {
	var input contracts.CreateInput

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid project id")
	}
	freelancerID, err := uuid.Parse(req.FreelancerID)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid freelancer id")
	}
	currency, err := enums.ParseCurrency(req.Currency)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}

	milestones := make([]contracts.MilestoneInput, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		amount, err := parseAmount("amount", m.Amount)
		if err != nil {
			return input, err
		}
		milestones = append(milestones, contracts.MilestoneInput{
			Title:        m.Title,
			Description:  m.Description,
			Deliverables: m.Deliverables,
			Amount:       amount,
		})
	}

	return contracts.CreateInput{
		ProjectID:    projectID,
		ClientID:     clientID,
		FreelancerID: freelancerID,
		Title:        req.Title,
		Currency:     currency,
		Milestones:   milestones,
	}, nil
}
