// Package paymentplans manages proposal installment schedules and the
// checkout of individual stages.
package paymentplans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/venuepay-backend/internal/repo"
	dbpkg "github.com/angelmondragon/venuepay-backend/pkg/db"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
)

// Repository defines persistence operations for proposals, plans, stages and
// service requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateProposal(ctx context.Context, proposal *models.Proposal) error
	FindProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error)

	FindPlanByProposal(ctx context.Context, proposalID uuid.UUID) (*models.PaymentPlan, error)
	FindPlanByID(ctx context.Context, id uuid.UUID) (*models.PaymentPlan, error)
	CreatePlan(ctx context.Context, plan *models.PaymentPlan) error
	UpdatePlanTotals(ctx context.Context, id uuid.UUID, total decimal.Decimal, currency enums.Currency) error

	FindStage(ctx context.Context, id uuid.UUID) (*models.PaymentStage, error)
	FindEarliestPendingStage(ctx context.Context, planID uuid.UUID) (*models.PaymentStage, error)
	CreateStage(ctx context.Context, stage *models.PaymentStage) error
	UpdateStage(ctx context.Context, id uuid.UUID, updates map[string]any) error
	TransitionStage(ctx context.Context, id uuid.UUID, from []enums.PaymentStageStatus, to enums.PaymentStageStatus, extra map[string]any) (bool, error)
	DeleteUnlockedStage(ctx context.Context, id uuid.UUID) (bool, error)

	CreateServiceRequest(ctx context.Context, req *models.ServiceRequest) error
	FindServiceRequest(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	AcceptServiceRequest(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a payment plan repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) CreateProposal(ctx context.Context, proposal *models.Proposal) error {
	if proposal.ID == uuid.Nil {
		proposal.ID = uuid.New()
	}
	return r.DB(ctx).Create(proposal).Error
}

func (r *repository) FindProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := r.DB(ctx).Where("id = ?", id).First(&proposal).Error; err != nil {
		return nil, notFound(err, "proposal")
	}
	return &proposal, nil
}

func (r *repository) FindPlanByProposal(ctx context.Context, proposalID uuid.UUID) (*models.PaymentPlan, error) {
	var plan models.PaymentPlan
	err := r.DB(ctx).
		Preload("Stages", orderStages).
		Where("proposal_id = ?", proposalID).
		First(&plan).Error
	if err != nil {
		return nil, notFound(err, "payment plan")
	}
	return &plan, nil
}

func (r *repository) FindPlanByID(ctx context.Context, id uuid.UUID) (*models.PaymentPlan, error) {
	var plan models.PaymentPlan
	err := r.DB(ctx).
		Preload("Stages", orderStages).
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		return nil, notFound(err, "payment plan")
	}
	return &plan, nil
}

func (r *repository) CreatePlan(ctx context.Context, plan *models.PaymentPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	err := r.DB(ctx).Omit(clause.Associations).Create(plan).Error
	if dbpkg.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment plan already exists for proposal")
	}
	return err
}

func (r *repository) UpdatePlanTotals(ctx context.Context, id uuid.UUID, total decimal.Decimal, currency enums.Currency) error {
	res := r.DB(ctx).
		Model(&models.PaymentPlan{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_amount": total,
			"currency":     currency,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.NotFound("payment plan")
	}
	return nil
}

func (r *repository) FindStage(ctx context.Context, id uuid.UUID) (*models.PaymentStage, error) {
	var stage models.PaymentStage
	if err := r.DB(ctx).Where("id = ?", id).First(&stage).Error; err != nil {
		return nil, notFound(err, "payment stage")
	}
	return &stage, nil
}

// FindEarliestPendingStage returns nil without error when the plan has no
// PENDING stage.
func (r *repository) FindEarliestPendingStage(ctx context.Context, planID uuid.UUID) (*models.PaymentStage, error) {
	var stage models.PaymentStage
	err := r.DB(ctx).
		Where("payment_plan_id = ? AND status = ?", planID, enums.PaymentStageStatusPending).
		Order("due_date ASC, created_at ASC").
		First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

func (r *repository) CreateStage(ctx context.Context, stage *models.PaymentStage) error {
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	if stage.Status == "" {
		stage.Status = enums.PaymentStageStatusPending
	}
	return r.DB(ctx).Create(stage).Error
}

func (r *repository) UpdateStage(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	fields := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		fields[k] = v
	}
	fields["updated_at"] = time.Now().UTC()
	res := r.DB(ctx).Model(&models.PaymentStage{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.NotFound("payment stage")
	}
	return nil
}

// TransitionStage moves a stage to `to` only while it is still in one of the
// from statuses.
func (r *repository) TransitionStage(ctx context.Context, id uuid.UUID, from []enums.PaymentStageStatus, to enums.PaymentStageStatus, extra map[string]any) (bool, error) {
	updates := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()
	res := r.DB(ctx).
		Model(&models.PaymentStage{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DeleteUnlockedStage(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Where("id = ? AND status = ?", id, enums.PaymentStageStatusPending).
		Delete(&models.PaymentStage{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreateServiceRequest(ctx context.Context, req *models.ServiceRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return r.DB(ctx).Create(req).Error
}

func (r *repository) FindServiceRequest(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	if err := r.DB(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, notFound(err, "service request")
	}
	return &req, nil
}

func (r *repository) AcceptServiceRequest(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.ServiceRequest{}).
		Where("id = ? AND status = ?", id, enums.ServiceRequestStatusPending).
		Updates(map[string]any{
			"status":      enums.ServiceRequestStatusAccepted,
			"accepted_at": at,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func orderStages(db *gorm.DB) *gorm.DB {
	return db.Order("due_date ASC, created_at ASC")
}

func notFound(err error, entity string) error {
	if dbpkg.IsNotFound(err) {
		return pkgerrors.NotFound(entity)
	}
	return err
}
