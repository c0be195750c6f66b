// Package reminders emails customers about payment stages that are coming due
// or overdue and keeps an audit trail of what was sent.
package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/venuepay-backend/internal/repo"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
)

// StageTarget is a payment stage joined with the plan and proposal data a
// reminder email needs.
type StageTarget struct {
	StageID          uuid.UUID
	Description      string
	Amount           decimal.Decimal
	DueDate          time.Time
	Status           enums.PaymentStageStatus
	StripePaymentURL *string
	ProposalID       uuid.UUID
	ProposalTitle    string
	CustomerName     string
	CustomerEmail    string
	Currency         enums.Currency
}

// Repository defines the reminder scans and the audit log.
type Repository interface {
	FindUpcoming(ctx context.Context, now, until time.Time) ([]StageTarget, error)
	FindOverdue(ctx context.Context, now time.Time) ([]StageTarget, error)
	SentSince(ctx context.Context, stageID uuid.UUID, reminderType enums.ReminderType, since time.Time) (bool, error)
	Record(ctx context.Context, reminder *models.PaymentReminder) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a reminder repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

const targetColumns = `payment_stages.id AS stage_id,
	payment_stages.description AS description,
	payment_stages.amount AS amount,
	payment_stages.due_date AS due_date,
	payment_stages.status AS status,
	payment_stages.stripe_payment_url AS stripe_payment_url,
	proposals.id AS proposal_id,
	proposals.title AS proposal_title,
	proposals.customer_name AS customer_name,
	proposals.customer_email AS customer_email,
	payment_plans.currency AS currency`

func (r *repository) targets(ctx context.Context) *gorm.DB {
	return r.DB(ctx).
		Table("payment_stages").
		Select(targetColumns).
		Joins("JOIN payment_plans ON payment_plans.id = payment_stages.payment_plan_id").
		Joins("JOIN proposals ON proposals.id = payment_plans.proposal_id").
		Order("payment_stages.due_date ASC")
}

// FindUpcoming returns PENDING stages due after now and no later than until.
func (r *repository) FindUpcoming(ctx context.Context, now, until time.Time) ([]StageTarget, error) {
	var out []StageTarget
	err := r.targets(ctx).
		Where("payment_stages.status = ?", enums.PaymentStageStatusPending).
		Where("payment_stages.due_date > ? AND payment_stages.due_date <= ?", now, until).
		Scan(&out).Error
	return out, err
}

// FindOverdue returns unpaid stages whose due date is before now.
func (r *repository) FindOverdue(ctx context.Context, now time.Time) ([]StageTarget, error) {
	var out []StageTarget
	err := r.targets(ctx).
		Where("payment_stages.status IN ?", []enums.PaymentStageStatus{
			enums.PaymentStageStatusPending,
			enums.PaymentStageStatusProcessing,
		}).
		Where("payment_stages.due_date < ?", now).
		Scan(&out).Error
	return out, err
}

func (r *repository) SentSince(ctx context.Context, stageID uuid.UUID, reminderType enums.ReminderType, since time.Time) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.PaymentReminder{}).
		Where("payment_stage_id = ? AND type = ? AND sent_at >= ?", stageID, reminderType, since).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Record(ctx context.Context, reminder *models.PaymentReminder) error {
	if reminder.ID == uuid.Nil {
		reminder.ID = uuid.New()
	}
	return r.DB(ctx).Create(reminder).Error
}
