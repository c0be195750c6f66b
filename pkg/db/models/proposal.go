package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/venuepay-backend/pkg/enums"
)

// Proposal is the quote a customer accepts before a payment plan is issued.
type Proposal struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CustomerName  string               `gorm:"column:customer_name;not null"`
	CustomerEmail string               `gorm:"column:customer_email;not null"`
	Title         string               `gorm:"column:title;not null"`
	EventDate     *time.Time           `gorm:"column:event_date"`
	Currency      enums.Currency       `gorm:"column:currency;not null;default:'USD'"`
	Status        enums.ProposalStatus `gorm:"column:status;not null;default:'DRAFT'"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
