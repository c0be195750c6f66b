package paymentintents

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
)

type paymentIntentResponse struct {
	ID                     uuid.UUID  `json:"id"`
	BookingID              uuid.UUID  `json:"bookingId"`
	Status                 string     `json:"status"`
	PaymentStructure       string     `json:"paymentStructure"`
	Amount                 string     `json:"amount"`
	RemainingAmount        string     `json:"remainingAmount"`
	Currency               string     `json:"currency"`
	PaymentLinkID          *string    `json:"paymentLinkId,omitempty"`
	ExpiresAt              time.Time  `json:"expiresAt"`
	SecondPaymentLinkID    *string    `json:"secondPaymentLinkId,omitempty"`
	SecondPaymentStatus    *string    `json:"secondPaymentStatus,omitempty"`
	SecondPaymentExpiresAt *time.Time `json:"secondPaymentExpiresAt,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

func newPaymentIntentResponse(intent *models.PaymentIntent) paymentIntentResponse {
	resp := paymentIntentResponse{
		ID:                     intent.ID,
		BookingID:              intent.BookingID,
		Status:                 string(intent.Status),
		PaymentStructure:       string(intent.PaymentStructure),
		Amount:                 intent.Amount.StringFixed(2),
		RemainingAmount:        intent.RemainingAmount.StringFixed(2),
		Currency:               string(intent.Currency),
		PaymentLinkID:          intent.StripePaymentLinkID,
		ExpiresAt:              intent.ExpiresAt,
		SecondPaymentLinkID:    intent.SecondPaymentLinkID,
		SecondPaymentExpiresAt: intent.SecondPaymentExpiresAt,
		CreatedAt:              intent.CreatedAt,
		UpdatedAt:              intent.UpdatedAt,
	}
	if intent.SecondPaymentStatus != nil {
		status := string(*intent.SecondPaymentStatus)
		resp.SecondPaymentStatus = &status
	}
	return resp
}
