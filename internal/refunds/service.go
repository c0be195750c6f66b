// Package refunds issues gateway refunds for bookings. Local status only
// changes when the gateway confirms through settlement.
package refunds

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
	"github.com/angelmondragon/venuepay-backend/pkg/metrics"
	"github.com/angelmondragon/venuepay-backend/pkg/stripe"
)

const reasonBookingRefund = "booking_refund"

type bookingReader interface {
	FindWithPaymentIntent(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

// Result acknowledges a refund request. It is not a completion signal.
type Result struct {
	RefundID     string          `json:"refundId"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	Status       string          `json:"status,omitempty"`
}

type Service interface {
	RefundBooking(ctx context.Context, bookingID uuid.UUID) (*Result, error)
}

type ServiceParams struct {
	Bookings bookingReader
	Gateway  stripe.Gateway
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

type service struct {
	bookings bookingReader
	gateway  stripe.Gateway
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	return &service{
		bookings: params.Bookings,
		gateway:  params.Gateway,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// RefundBooking asks the gateway to refund the booking's full total against
// the payment that settled it.
func (s *service) RefundBooking(ctx context.Context, bookingID uuid.UUID) (*Result, error) {
	booking, err := s.bookings.FindWithPaymentIntent(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithBookingID(ctx, booking.ID.String())
	}

	if booking.Status == enums.BookingStatusRefunded {
		return nil, pkgerrors.InvalidState("Booking has already been refunded")
	}
	intent := booking.PaymentIntent
	if intent == nil || intent.StripePaymentIntentID == nil || *intent.StripePaymentIntentID == "" {
		return nil, pkgerrors.InvalidState("Booking has no settled payment to refund")
	}
	if !booking.TotalAmount.IsPositive() {
		return nil, pkgerrors.InvalidState("Booking total amount must be positive to refund")
	}

	refund, err := s.gateway.CreateRefund(ctx, stripe.RefundInput{
		PaymentIntentID: *intent.StripePaymentIntentID,
		Amount:          booking.TotalAmount,
		Metadata: map[string]string{
			stripe.MetadataBookingID:       booking.ID.String(),
			stripe.MetadataPaymentIntentID: intent.ID.String(),
			stripe.MetadataRefundReason:    reasonBookingRefund,
		},
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRefundRequested()
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "refund_id", refund.ID), "refund requested")
	}

	return &Result{
		RefundID:     refund.ID,
		RefundAmount: booking.TotalAmount,
		Status:       refund.Status,
	}, nil
}
