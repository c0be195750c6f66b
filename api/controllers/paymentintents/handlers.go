package paymentintents

import (
	"net/http"

	"github.com/angelmondragon/venuepay-backend/api/responses"
	"github.com/angelmondragon/venuepay-backend/api/validators"
	intentsvc "github.com/angelmondragon/venuepay-backend/internal/paymentintents"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
)

type createRequest struct {
	PaymentStructure string `json:"paymentStructure" validate:"required,oneof=FULL SPLIT_PAYMENT"`
}

type secondPaymentRequest struct {
	ExpiresInHours *int `json:"expiresInHours" validate:"omitempty,min=1,max=720"`
}

func unavailable(svc intentsvc.Service, w http.ResponseWriter, r *http.Request, logg *logger.Logger) bool {
	if svc != nil {
		return false
	}
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment intent service unavailable"))
	return true
}

// Create opens the primary payment link for a booking.
func Create(svc intentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		bookingID, err := validators.URLParamUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		structure, err := enums.ParsePaymentStructure(payload.PaymentStructure)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paymentStructure"))
			return
		}

		res, err := svc.Create(r.Context(), bookingID, structure)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, "Payment link created", map[string]any{
			"paymentIntent": newPaymentIntentResponse(res.PaymentIntent),
			"paymentUrl":    res.PaymentURL,
		})
	}
}

func Get(svc intentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		id, err := validators.URLParamUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Payment intent retrieved", newPaymentIntentResponse(intent))
	}
}

// CheckStatus redirects a payer to the live primary link, or explains why
// it cannot.
func CheckStatus(svc intentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		id, err := validators.URLParamUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		url, err := svc.CheckStatus(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.Redirect(w, r, "Redirecting to payment", url)
	}
}

func CreateSecondPayment(svc intentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		id, err := validators.URLParamUUID(r, "paymentIntentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload secondPaymentRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.CreateSecondPayment(r.Context(), id, payload.ExpiresInHours)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Second payment link created", res)
	}
}

func CheckSecondPaymentStatus(svc intentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		id, err := validators.URLParamUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		url, err := svc.CheckSecondPaymentStatus(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.Redirect(w, r, "Redirecting to second payment", url)
	}
}

func SendReminder(svc intentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		id, err := validators.URLParamUUID(r, "paymentIntentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SendReminder(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Payment reminder sent", nil)
	}
}

func Cancel(svc intentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		id, err := validators.URLParamUUID(r, "paymentIntentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := svc.Cancel(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Payment intent cancelled", newPaymentIntentResponse(intent))
	}
}
