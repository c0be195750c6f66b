package paymentplans

import (
	"net/http"

	"github.com/angelmondragon/venuepay-backend/api/responses"
	"github.com/angelmondragon/venuepay-backend/api/validators"
	plansvc "github.com/angelmondragon/venuepay-backend/internal/paymentplans"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
)

func unavailable(svc plansvc.Service, w http.ResponseWriter, r *http.Request, logg *logger.Logger) bool {
	if svc != nil {
		return false
	}
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment plan service unavailable"))
	return true
}

func GetPlan(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		proposalID, err := validators.URLParamUUID(r, "proposalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plan, err := svc.GetPlan(r.Context(), proposalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Payment plan retrieved", newPlanResponse(plan))
	}
}

// ReplacePlan reconciles the proposal's plan with the submitted stages.
func ReplacePlan(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		proposalID, err := validators.URLParamUUID(r, "proposalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload replacePlanRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.ReplacePlan(r.Context(), proposalID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Payment plan saved", newPlanResponse(plan))
	}
}

func CreateStageIntent(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		stageID, err := validators.URLParamUUID(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.CreateStageIntent(r.Context(), stageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Checkout session ready", map[string]any{
			"paymentStage": newStageResponse(res.PaymentStage),
			"paymentUrl":   res.PaymentURL,
		})
	}
}

func DeleteStage(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		stageID, err := validators.URLParamUUID(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteStage(r.Context(), stageID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Payment stage deleted", nil)
	}
}

func AcceptServiceRequest(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		requestID, err := validators.URLParamUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.AcceptServiceRequest(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Service request accepted", map[string]any{
			"serviceRequest": newServiceRequestResponse(res.ServiceRequest),
			"paymentPlan":    newPlanResponse(res.PaymentPlan),
		})
	}
}
