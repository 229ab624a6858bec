package contracts

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
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

// Actor is the authenticated party attempting a transition.
type Actor struct {
	ID   uuid.UUID
	Role enums.UserRole
}

// ServiceParams wires the contract service dependencies.
type ServiceParams struct {
	Logger   *logger.Logger
	Repo     Repository
	TxRunner TxRunner
}

// Service owns the contract and milestone lifecycles. Every milestone
// transition is authorized against the contract's parties: the freelancer
// starts and submits, the client approves or rejects, and only the payment
// pipeline marks paid.
type Service struct {
	logger   *logger.Logger
	repo     Repository
	txRunner TxRunner

	now func() time.Time
}

func NewService(params ServiceParams) *Service {
	return &Service{
		logger:   params.Logger,
		repo:     params.Repo,
		txRunner: params.TxRunner,
		now:      time.Now,
	}
}

// MilestoneInput describes one milestone at contract creation.
type MilestoneInput struct {
	Title        string
	Description  *string
	Deliverables []string
	Amount       decimal.Decimal
}

// CreateInput describes a new draft contract.
type CreateInput struct {
	ProjectID    uuid.UUID
	ClientID     uuid.UUID
	FreelancerID uuid.UUID
	Title        string
	Currency     enums.Currency
	Milestones   []MilestoneInput
}

// Create persists a draft contract with its ordered milestones. The contract
// total is the sum of milestone amounts.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Contract, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	total := decimal.Zero
	milestones := make([]models.Milestone, 0, len(input.Milestones))
	for i, m := range input.Milestones {
		total = total.Add(m.Amount)
		milestones = append(milestones, models.Milestone{
			Position:     i + 1,
			Title:        m.Title,
			Description:  m.Description,
			Deliverables: pq.StringArray(m.Deliverables),
			Amount:       m.Amount,
			Status:       enums.MilestoneStatusPending,
		})
	}

	contract := &models.Contract{
		ProjectID:    input.ProjectID,
		ClientID:     input.ClientID,
		FreelancerID: input.FreelancerID,
		Title:        input.Title,
		Status:       enums.ContractStatusDraft,
		TotalAmount:  total,
		Currency:     input.Currency,
		Milestones:   milestones,
	}
	if err := s.repo.Create(ctx, contract); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating contract")
	}

	ctx = s.logger.WithContractID(ctx, contract.ID.String())
	s.logger.Info(ctx, "contract created")
	return contract, nil
}

// Get fetches a contract with its milestones, ordered by position.
func (s *Service) Get(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	contract, err := s.repo.Find(ctx, contractID)
	if err != nil {
		return nil, contractLookupError(err)
	}
	return contract, nil
}

// ListByParty pages through contracts where the user is client or freelancer.
func (s *Service) ListByParty(ctx context.Context, userID uuid.UUID, params pagination.Params, status *enums.ContractStatus) (*ContractList, error) {
	list, err := s.repo.ListByParty(ctx, userID, params, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing contracts")
	}
	return list, nil
}

// Sign records the actor's signature on a draft contract. Re-signing is a
// no-op.
func (s *Service) Sign(ctx context.Context, contractID uuid.UUID, actor Actor) (*models.Contract, error) {
	var contract *models.Contract
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindForUpdate(ctx, contractID)
		if err != nil {
			return contractLookupError(err)
		}
		if locked.Status != enums.ContractStatusDraft {
			return contractStateConflict(locked.Status, "sign")
		}

		signedAt := s.now().UTC()
		switch actor.ID {
		case locked.ClientID:
			if locked.ClientSigned {
				contract = locked
				return nil
			}
			if err := repo.Update(ctx, locked.ID, map[string]any{
				"client_signed":    true,
				"client_signed_at": signedAt,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating contract")
			}
			locked.ClientSigned = true
			locked.ClientSignedAt = &signedAt

		case locked.FreelancerID:
			if locked.FreelancerSigned {
				contract = locked
				return nil
			}
			if err := repo.Update(ctx, locked.ID, map[string]any{
				"freelancer_signed":    true,
				"freelancer_signed_at": signedAt,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating contract")
			}
			locked.FreelancerSigned = true
			locked.FreelancerSignedAt = &signedAt

		default:
			return pkgerrors.New(pkgerrors.CodeUnauthorizedTransition, "only contract parties may sign")
		}

		contract = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// Activate moves a fully signed draft contract to active.
func (s *Service) Activate(ctx context.Context, contractID uuid.UUID, actor Actor) (*models.Contract, error) {
	var contract *models.Contract
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindForUpdate(ctx, contractID)
		if err != nil {
			return contractLookupError(err)
		}
		if err := requireParty(locked, actor); err != nil {
			return err
		}
		if locked.Status == enums.ContractStatusActive {
			contract = locked
			return nil
		}
		if locked.Status != enums.ContractStatusDraft {
			return contractStateConflict(locked.Status, "activate")
		}
		if !locked.ClientSigned || !locked.FreelancerSigned {
			return pkgerrors.New(pkgerrors.CodeIncompleteSignatures, "both parties must sign before activation").
				WithDetails(map[string]any{
					"client_signed":     locked.ClientSigned,
					"freelancer_signed": locked.FreelancerSigned,
				})
		}

		activatedAt := s.now().UTC()
		if err := repo.Update(ctx, locked.ID, map[string]any{
			"status":       enums.ContractStatusActive,
			"activated_at": activatedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating contract")
		}
		locked.Status = enums.ContractStatusActive
		locked.ActivatedAt = &activatedAt
		contract = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithContractID(ctx, contract.ID.String())
	s.logger.Info(ctx, "contract activated")
	return contract, nil
}

// Complete closes an active contract once every milestone is paid or
// rejected.
func (s *Service) Complete(ctx context.Context, contractID uuid.UUID, actor Actor) (*models.Contract, error) {
	var contract *models.Contract
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindForUpdate(ctx, contractID)
		if err != nil {
			return contractLookupError(err)
		}
		if err := requireParty(locked, actor); err != nil {
			return err
		}
		if locked.Status == enums.ContractStatusCompleted {
			contract = locked
			return nil
		}
		if locked.Status != enums.ContractStatusActive {
			return contractStateConflict(locked.Status, "complete")
		}

		unresolved, err := repo.CountUnresolvedMilestones(ctx, locked.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting milestones")
		}
		if unresolved > 0 {
			return pkgerrors.New(pkgerrors.CodeMilestonesOutstanding, "contract has unresolved milestones").
				WithDetails(map[string]any{"unresolved": unresolved})
		}

		completedAt := s.now().UTC()
		if err := repo.Update(ctx, locked.ID, map[string]any{
			"status":       enums.ContractStatusCompleted,
			"completed_at": completedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating contract")
		}
		locked.Status = enums.ContractStatusCompleted
		locked.CompletedAt = &completedAt
		contract = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithContractID(ctx, contract.ID.String())
	s.logger.Info(ctx, "contract completed")
	return contract, nil
}

// Terminate ends a draft or active contract, recording the reason.
func (s *Service) Terminate(ctx context.Context, contractID uuid.UUID, actor Actor, reason string) (*models.Contract, error) {
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "termination reason is required")
	}

	var contract *models.Contract
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindForUpdate(ctx, contractID)
		if err != nil {
			return contractLookupError(err)
		}
		if err := requireParty(locked, actor); err != nil {
			return err
		}
		if locked.Status != enums.ContractStatusDraft && locked.Status != enums.ContractStatusActive {
			return contractStateConflict(locked.Status, "terminate")
		}

		if err := repo.Update(ctx, locked.ID, map[string]any{
			"status":             enums.ContractStatusTerminated,
			"termination_reason": reason,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating contract")
		}
		locked.Status = enums.ContractStatusTerminated
		locked.TerminationReason = &reason
		contract = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithContractID(ctx, contract.ID.String())
	s.logger.Info(ctx, "contract terminated")
	return contract, nil
}

// StartMilestone moves a pending milestone to in_progress. Freelancer only,
// and only while the contract is active.
func (s *Service) StartMilestone(ctx context.Context, milestoneID uuid.UUID, actor Actor) (*models.Milestone, error) {
	return s.transitionMilestone(ctx, milestoneID, actor, milestoneTransition{
		name:         "start",
		from:         enums.MilestoneStatusPending,
		to:           enums.MilestoneStatusInProgress,
		byFreelancer: true,
		apply: func(m *models.Milestone, at time.Time) map[string]any {
			m.StartedAt = &at
			return map[string]any{"started_at": at}
		},
	})
}

// SubmitMilestone moves an in-progress milestone to submitted, stamping the
// submission date. Freelancer only.
func (s *Service) SubmitMilestone(ctx context.Context, milestoneID uuid.UUID, actor Actor) (*models.Milestone, error) {
	return s.transitionMilestone(ctx, milestoneID, actor, milestoneTransition{
		name:         "submit",
		from:         enums.MilestoneStatusInProgress,
		to:           enums.MilestoneStatusSubmitted,
		byFreelancer: true,
		apply: func(m *models.Milestone, at time.Time) map[string]any {
			m.SubmissionDate = &at
			return map[string]any{"submission_date": at}
		},
	})
}

// ApproveMilestone moves a submitted milestone to approved, stamping the
// approval date. Client only.
func (s *Service) ApproveMilestone(ctx context.Context, milestoneID uuid.UUID, actor Actor) (*models.Milestone, error) {
	return s.transitionMilestone(ctx, milestoneID, actor, milestoneTransition{
		name: "approve",
		from: enums.MilestoneStatusSubmitted,
		to:   enums.MilestoneStatusApproved,
		apply: func(m *models.Milestone, at time.Time) map[string]any {
			m.ApprovalDate = &at
			return map[string]any{"approval_date": at}
		},
	})
}

// RejectMilestone moves a submitted milestone to rejected. Client only;
// feedback is required.
func (s *Service) RejectMilestone(ctx context.Context, milestoneID uuid.UUID, actor Actor, feedback string) (*models.Milestone, error) {
	if feedback == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection feedback is required")
	}
	return s.transitionMilestone(ctx, milestoneID, actor, milestoneTransition{
		name: "reject",
		from: enums.MilestoneStatusSubmitted,
		to:   enums.MilestoneStatusRejected,
		apply: func(m *models.Milestone, at time.Time) map[string]any {
			m.Feedback = &feedback
			return map[string]any{"feedback": feedback}
		},
	})
}

// MarkMilestonePaidTx flips an approved milestone to paid inside the
// caller's transaction. Driven by payment settlement, never by an actor.
func (s *Service) MarkMilestonePaidTx(ctx context.Context, tx *gorm.DB, milestoneID, paymentID uuid.UUID) error {
	repo := s.repo.WithTx(tx)

	milestone, err := repo.FindMilestoneForUpdate(ctx, milestoneID)
	if err != nil {
		return milestoneLookupError(err)
	}
	if milestone.Status == enums.MilestoneStatusPaid {
		return nil
	}
	if milestone.Status != enums.MilestoneStatusApproved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "milestone must be approved before payment").
			WithDetails(map[string]any{"status": milestone.Status})
	}

	paidAt := s.now().UTC()
	if err := repo.UpdateMilestone(ctx, milestone.ID, map[string]any{
		"status":       enums.MilestoneStatusPaid,
		"payment_id":   paymentID,
		"payment_date": paidAt,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating milestone")
	}
	return nil
}

type milestoneTransition struct {
	name         string
	from         enums.MilestoneStatus
	to           enums.MilestoneStatus
	byFreelancer bool
	apply        func(m *models.Milestone, at time.Time) map[string]any
}

func (s *Service) transitionMilestone(ctx context.Context, milestoneID uuid.UUID, actor Actor, t milestoneTransition) (*models.Milestone, error) {
	var milestone *models.Milestone
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindMilestoneForUpdate(ctx, milestoneID)
		if err != nil {
			return milestoneLookupError(err)
		}

		contract, err := repo.Find(ctx, locked.ContractID)
		if err != nil {
			return contractLookupError(err)
		}
		if contract.Status != enums.ContractStatusActive {
			return contractStateConflict(contract.Status, t.name+" milestone")
		}

		expected := contract.ClientID
		if t.byFreelancer {
			expected = contract.FreelancerID
		}
		if actor.Role != enums.UserRoleAdmin && actor.ID != expected {
			return pkgerrors.New(pkgerrors.CodeUnauthorizedTransition, "actor may not perform this transition").
				WithDetails(map[string]any{"transition": t.name})
		}

		if locked.Status != t.from {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "milestone transition disallowed").
				WithDetails(map[string]any{
					"transition": t.name,
					"from":       locked.Status,
					"to":         t.to,
				})
		}

		at := s.now().UTC()
		fields := t.apply(locked, at)
		fields["status"] = t.to
		if err := repo.UpdateMilestone(ctx, locked.ID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating milestone")
		}
		locked.Status = t.to
		milestone = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}

func validateCreateInput(input CreateInput) error {
	if input.ProjectID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}
	if input.ClientID == uuid.Nil || input.FreelancerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client and freelancer are required")
	}
	if input.ClientID == input.FreelancerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "client and freelancer must differ")
	}
	if input.Title == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	if len(input.Milestones) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one milestone is required")
	}
	for i, m := range input.Milestones {
		if m.Title == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "milestone title is required").
				WithDetails(map[string]any{"position": i + 1})
		}
		if !m.Amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "milestone amount must be positive").
				WithDetails(map[string]any{"position": i + 1})
		}
	}
	return nil
}

func requireParty(contract *models.Contract, actor Actor) error {
	if actor.Role == enums.UserRoleAdmin {
		return nil
	}
	if actor.ID != contract.ClientID && actor.ID != contract.FreelancerID {
		return pkgerrors.New(pkgerrors.CodeUnauthorizedTransition, "actor is not a contract party")
	}
	return nil
}

func contractStateConflict(status enums.ContractStatus, action string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "contract state disallows "+action).
		WithDetails(map[string]any{"status": status})
}

func contractLookupError(err error) error {
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading contract")
}

func milestoneLookupError(err error) error {
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "milestone not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading milestone")
}
