package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	"github.com/angelmondragon/venuepay-backend/pkg/types"
)

// PaymentIntent tracks the primary and optional second payment of a booking.
type PaymentIntent struct {
	ID                          uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	BookingID                   uuid.UUID                  `gorm:"column:booking_id;type:uuid;not null"`
	Status                      enums.PaymentIntentStatus  `gorm:"column:status;not null;default:'CREATED'"`
	PaymentStructure            enums.PaymentStructure     `gorm:"column:payment_structure;not null;default:'FULL'"`
	Amount                      decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	RemainingAmount             decimal.Decimal            `gorm:"column:remaining_amount;type:numeric(12,2);not null"`
	Currency                    enums.Currency             `gorm:"column:currency;not null"`
	StripeProductID             *string                    `gorm:"column:stripe_product_id"`
	StripePaymentLinkID         *string                    `gorm:"column:stripe_payment_link_id"`
	StripePaymentIntentID       *string                    `gorm:"column:stripe_payment_intent_id"`
	ExpiresAt                   time.Time                  `gorm:"column:expires_at;not null"`
	SecondPaymentLinkID         *string                    `gorm:"column:second_payment_link_id"`
	SecondPaymentStatus         *enums.PaymentIntentStatus `gorm:"column:second_payment_status"`
	SecondPaymentExpiresAt      *time.Time                 `gorm:"column:second_payment_expires_at"`
	SecondStripePaymentIntentID *string                    `gorm:"column:second_stripe_payment_intent_id"`
	CustomerData                types.CustomerData         `gorm:"column:customer_data;type:text"`
	Version                     int                        `gorm:"column:version;not null;default:1"`
	CreatedAt                   time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                   time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// PrimaryExpired reports whether the primary link is past its expiry at now.
func (p PaymentIntent) PrimaryExpired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// HasOpenSecondPayment reports whether a second link exists and can still be paid at now.
func (p PaymentIntent) HasOpenSecondPayment(now time.Time) bool {
	if p.SecondPaymentLinkID == nil || p.SecondPaymentStatus == nil {
		return false
	}
	if p.SecondPaymentStatus.IsTerminal() {
		return false
	}
	return p.SecondPaymentExpiresAt != nil && p.SecondPaymentExpiresAt.After(now)
}
