package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/venuepay-backend/pkg/enums"
)

// ServiceRequest is an add-on a customer asks for on top of a proposal.
type ServiceRequest struct {
	ID          uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	ProposalID  uuid.UUID                  `gorm:"column:proposal_id;type:uuid;not null"`
	Description string                     `gorm:"column:description;not null"`
	Amount      decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	Status      enums.ServiceRequestStatus `gorm:"column:status;not null;default:'PENDING'"`
	AcceptedAt  *time.Time                 `gorm:"column:accepted_at"`
	CreatedAt   time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
