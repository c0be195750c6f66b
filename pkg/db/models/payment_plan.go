package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/venuepay-backend/pkg/enums"
)

// PaymentPlan is the installment schedule attached to a proposal.
type PaymentPlan struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProposalID  uuid.UUID       `gorm:"column:proposal_id;type:uuid;not null;uniqueIndex"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency    enums.Currency  `gorm:"column:currency;not null"`
	Stages      []PaymentStage  `gorm:"foreignKey:PaymentPlanID;references:ID"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentStage is one installment of a plan.
type PaymentStage struct {
	ID                      uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	PaymentPlanID           uuid.UUID                `gorm:"column:payment_plan_id;type:uuid;not null"`
	Description             string                   `gorm:"column:description;not null"`
	Amount                  decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null"`
	DueDate                 time.Time                `gorm:"column:due_date;not null"`
	Status                  enums.PaymentStageStatus `gorm:"column:status;not null;default:'PENDING'"`
	StripePaymentIntentID   *string                  `gorm:"column:stripe_payment_intent_id"`
	StripeCheckoutSessionID *string                  `gorm:"column:stripe_checkout_session_id"`
	StripePaymentURL        *string                  `gorm:"column:stripe_payment_url"`
	PaidAt                  *time.Time               `gorm:"column:paid_at"`
	CreatedAt               time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
