package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/venuepay-backend/pkg/enums"
)

// Booking is a confirmed or pending venue reservation.
type Booking struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerName    string              `gorm:"column:customer_name;not null"`
	CustomerEmail   string              `gorm:"column:customer_email;not null"`
	CustomerPhone   *string             `gorm:"column:customer_phone"`
	VenueName       string              `gorm:"column:venue_name;not null"`
	EventDate       time.Time           `gorm:"column:event_date;not null"`
	Status          enums.BookingStatus `gorm:"column:status;not null;default:'PENDING'"`
	TotalAmount     decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency        enums.Currency      `gorm:"column:currency;not null;default:'USD'"`
	PaymentIntentID *uuid.UUID          `gorm:"column:payment_intent_id;type:uuid"`
	PaymentIntent   *PaymentIntent      `gorm:"foreignKey:PaymentIntentID;references:ID"`
	RefundID        *string             `gorm:"column:refund_id"`
	RefundedAt      *time.Time          `gorm:"column:refunded_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
