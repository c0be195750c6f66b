package paymentplans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/venuepay-backend/pkg/config"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/lifecycle"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
	"github.com/angelmondragon/venuepay-backend/pkg/metrics"
	"github.com/angelmondragon/venuepay-backend/pkg/stripe"
)

// accepted service requests without a pending stage get a new one due this far out
const serviceRequestStageLead = 7 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the payment plan operations exposed to controllers.
type Service interface {
	GetPlan(ctx context.Context, proposalID uuid.UUID) (*models.PaymentPlan, error)
	ReplacePlan(ctx context.Context, proposalID uuid.UUID, input ReplacePlanInput) (*models.PaymentPlan, error)
	CreateStageIntent(ctx context.Context, stageID uuid.UUID) (*StageIntentResult, error)
	DeleteStage(ctx context.Context, stageID uuid.UUID) error
	AcceptServiceRequest(ctx context.Context, requestID uuid.UUID) (*AcceptResult, error)
}

// StageInput is one stage of a replacement plan. Stages carrying an ID update
// the existing stage in place.
type StageInput struct {
	ID          *uuid.UUID
	Description string
	Amount      decimal.Decimal
	DueDate     time.Time
}

type ReplacePlanInput struct {
	TotalAmount decimal.Decimal
	Currency    enums.Currency
	Stages      []StageInput
}

type StageIntentResult struct {
	PaymentStage *models.PaymentStage `json:"paymentStage"`
	PaymentURL   string               `json:"paymentUrl"`
}

type AcceptResult struct {
	ServiceRequest *models.ServiceRequest `json:"serviceRequest"`
	PaymentPlan    *models.PaymentPlan    `json:"paymentPlan"`
}

type ServiceParams struct {
	Repo              Repository
	Gateway           stripe.Gateway
	TransactionRunner txRunner
	Frontend          config.FrontendConfig
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo     Repository
	gateway  stripe.Gateway
	tx       txRunner
	frontend config.FrontendConfig
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the payment plan service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment plan repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		tx:       params.TransactionRunner,
		frontend: params.Frontend,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) GetPlan(ctx context.Context, proposalID uuid.UUID) (*models.PaymentPlan, error) {
	return s.repo.FindPlanByProposal(ctx, proposalID)
}

// ReplacePlan reconciles the stored plan with input. Stages matched by id are
// updated in place, stages without an id are created, and stored stages missing
// from input are deleted unless they are locked.
func (s *service) ReplacePlan(ctx context.Context, proposalID uuid.UUID, input ReplacePlanInput) (*models.PaymentPlan, error) {
	if err := validatePlanInput(input); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindProposal(ctx, proposalID); err != nil {
		return nil, err
	}

	var planID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		plan, err := txRepo.FindPlanByProposal(ctx, proposalID)
		if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return err
		}
		if plan == nil {
			plan = &models.PaymentPlan{
				ProposalID:  proposalID,
				TotalAmount: input.TotalAmount,
				Currency:    input.Currency,
			}
			if err := txRepo.CreatePlan(ctx, plan); err != nil {
				return err
			}
		} else if err := txRepo.UpdatePlanTotals(ctx, plan.ID, input.TotalAmount, input.Currency); err != nil {
			return err
		}
		planID = plan.ID

		existing := make(map[uuid.UUID]models.PaymentStage, len(plan.Stages))
		for _, stage := range plan.Stages {
			existing[stage.ID] = stage
		}
		kept := make(map[uuid.UUID]bool, len(input.Stages))

		for _, in := range input.Stages {
			if in.ID == nil {
				if err := txRepo.CreateStage(ctx, &models.PaymentStage{
					PaymentPlanID: plan.ID,
					Description:   in.Description,
					Amount:        in.Amount,
					DueDate:       in.DueDate.UTC(),
					Status:        enums.PaymentStageStatusPending,
				}); err != nil {
					return err
				}
				continue
			}

			current, ok := existing[*in.ID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment stage %s does not belong to this plan", *in.ID))
			}
			kept[current.ID] = true

			updates := map[string]any{
				"description": in.Description,
				"due_date":    in.DueDate.UTC(),
			}
			if current.Status.IsLocked() {
				if !current.Amount.Equal(in.Amount) && s.logg != nil {
					s.logg.Warn(s.logg.WithStageID(ctx, current.ID.String()), "ignoring amount change on locked payment stage")
				}
			} else {
				updates["amount"] = in.Amount
			}
			if err := txRepo.UpdateStage(ctx, current.ID, updates); err != nil {
				return err
			}
		}

		for _, stage := range plan.Stages {
			if kept[stage.ID] {
				continue
			}
			if stage.Status.IsLocked() {
				return pkgerrors.InvalidState(fmt.Sprintf("Payment stage %q is %s and cannot be removed", stage.Description, stage.Status))
			}
			deleted, err := txRepo.DeleteUnlockedStage(ctx, stage.ID)
			if err != nil {
				return err
			}
			if !deleted {
				return pkgerrors.New(pkgerrors.CodeConflict, "Payment stage changed while replacing the plan")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindPlanByID(ctx, planID)
}

func (s *service) CreateStageIntent(ctx context.Context, stageID uuid.UUID) (*StageIntentResult, error) {
	stage, err := s.repo.FindStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithStageID(ctx, stage.ID.String())
	}

	switch stage.Status {
	case enums.PaymentStageStatusPaid:
		return nil, pkgerrors.InvalidState("Payment stage has already been paid")
	case enums.PaymentStageStatusProcessing:
		if stage.StripePaymentURL != nil && *stage.StripePaymentURL != "" {
			return &StageIntentResult{PaymentStage: stage, PaymentURL: *stage.StripePaymentURL}, nil
		}
	}

	plan, err := s.repo.FindPlanByID(ctx, stage.PaymentPlanID)
	if err != nil {
		return nil, err
	}
	proposal, err := s.repo.FindProposal(ctx, plan.ProposalID)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutSessionInput{
		Name:          fmt.Sprintf("%s: %s", proposal.Title, stage.Description),
		Amount:        stage.Amount,
		Currency:      plan.Currency.Gateway(),
		CustomerEmail: proposal.CustomerEmail,
		SuccessURL:    s.portalURL(proposal.ID, stage.ID, "success"),
		CancelURL:     s.portalURL(proposal.ID, stage.ID, "cancelled"),
		Metadata: map[string]string{
			stripe.MetadataStageID:     stage.ID.String(),
			stripe.MetadataPaymentKind: string(stripe.PaymentKindStage),
		},
	})
	if err != nil {
		return nil, err
	}

	next := stage.Status
	if stage.Status == enums.PaymentStageStatusPending {
		if next, err = lifecycle.NextStageStatus(ctx, stage.Status, lifecycle.TriggerStartCheckout); err != nil {
			return nil, pkgerrors.InvalidState(fmt.Sprintf("Payment stage in status %s cannot start a checkout", stage.Status))
		}
	}
	extra := map[string]any{
		"stripe_checkout_session_id": session.ID,
		"stripe_payment_url":         session.URL,
	}
	if session.PaymentIntentID != "" {
		extra["stripe_payment_intent_id"] = session.PaymentIntentID
	}
	won, err := s.repo.TransitionStage(ctx, stage.ID, []enums.PaymentStageStatus{stage.Status}, next, extra)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist stage checkout")
	}
	if !won {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "Payment stage changed while starting checkout")
	}
	s.metrics.IncLinkCreated(string(stripe.PaymentKindStage))

	updated, err := s.repo.FindStage(ctx, stage.ID)
	if err != nil {
		return nil, err
	}
	return &StageIntentResult{PaymentStage: updated, PaymentURL: session.URL}, nil
}

func (s *service) DeleteStage(ctx context.Context, stageID uuid.UUID) error {
	stage, err := s.repo.FindStage(ctx, stageID)
	if err != nil {
		return err
	}
	if stage.Status.IsLocked() {
		return pkgerrors.InvalidState(fmt.Sprintf("Cannot delete a payment stage that is %s", stage.Status))
	}
	deleted, err := s.repo.DeleteUnlockedStage(ctx, stage.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete payment stage")
	}
	if !deleted {
		return pkgerrors.InvalidState("Payment stage is no longer pending and cannot be deleted")
	}
	return nil
}

// AcceptServiceRequest accepts a pending request and folds its amount into the
// plan: the earliest pending stage grows, or a new stage is added.
func (s *service) AcceptServiceRequest(ctx context.Context, requestID uuid.UUID) (*AcceptResult, error) {
	req, err := s.repo.FindServiceRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != enums.ServiceRequestStatusPending {
		return nil, pkgerrors.InvalidState(fmt.Sprintf("Service request is already %s", req.Status))
	}
	plan, err := s.repo.FindPlanByProposal(ctx, req.ProposalID)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return nil, pkgerrors.InvalidState("Proposal has no payment plan yet")
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		won, err := txRepo.AcceptServiceRequest(ctx, req.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeConflict, "Service request changed while accepting")
		}
		if !req.Amount.IsPositive() {
			return nil
		}

		stage, err := txRepo.FindEarliestPendingStage(ctx, plan.ID)
		if err != nil {
			return err
		}
		if stage != nil {
			if err := txRepo.UpdateStage(ctx, stage.ID, map[string]any{"amount": stage.Amount.Add(req.Amount)}); err != nil {
				return err
			}
		} else if err := txRepo.CreateStage(ctx, &models.PaymentStage{
			PaymentPlanID: plan.ID,
			Description:   req.Description,
			Amount:        req.Amount,
			DueDate:       now.Add(serviceRequestStageLead),
			Status:        enums.PaymentStageStatusPending,
		}); err != nil {
			return err
		}

		current, err := txRepo.FindPlanByID(ctx, plan.ID)
		if err != nil {
			return err
		}
		return txRepo.UpdatePlanTotals(ctx, plan.ID, current.TotalAmount.Add(req.Amount), current.Currency)
	})
	if err != nil {
		return nil, err
	}

	accepted, err := s.repo.FindServiceRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	updatedPlan, err := s.repo.FindPlanByID(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	return &AcceptResult{ServiceRequest: accepted, PaymentPlan: updatedPlan}, nil
}

func (s *service) portalURL(proposalID, stageID uuid.UUID, outcome string) string {
	if url := s.frontend.PortalURL(fmt.Sprintf("/proposals/%s/payments?stage=%s&checkout=%s", proposalID, stageID, outcome)); url != "" {
		return url
	}
	return s.frontend.APIURL(fmt.Sprintf("/api/v1/proposals/%s/payment-plan?stage=%s&checkout=%s", proposalID, stageID, outcome))
}

func validatePlanInput(input ReplacePlanInput) error {
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}
	if input.TotalAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "totalAmount must not be negative")
	}
	seen := make(map[uuid.UUID]bool, len(input.Stages))
	for i, stage := range input.Stages {
		if stage.Description == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("stages[%d].description is required", i))
		}
		if !stage.Amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("stages[%d].amount must be positive", i))
		}
		if stage.DueDate.IsZero() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("stages[%d].dueDate is required", i))
		}
		if stage.ID != nil {
			if seen[*stage.ID] {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("stages[%d].id is duplicated", i))
			}
			seen[*stage.ID] = true
		}
	}
	return nil
}
