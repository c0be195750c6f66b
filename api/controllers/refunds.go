package controllers

import (
	"net/http"

	"github.com/angelmondragon/venuepay-backend/api/responses"
	"github.com/angelmondragon/venuepay-backend/api/validators"
	"github.com/angelmondragon/venuepay-backend/internal/refunds"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
)

// BookingPartialRefund requests a gateway refund for the booking's full
// total. Settlement arrives later through the webhook.
func BookingPartialRefund(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		bookingID, err := validators.URLParamUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithBookingID(ctx, bookingID.String())
		}

		res, err := svc.RefundBooking(ctx, bookingID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Refund requested", map[string]any{
			"refundId":     res.RefundID,
			"refundAmount": res.RefundAmount.StringFixed(2),
			"status":       res.Status,
		})
	}
}
