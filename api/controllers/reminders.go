package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/venuepay-backend/api/responses"
	"github.com/angelmondragon/venuepay-backend/internal/reminders"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
)

type reminderDispatcher interface {
	Dispatch(ctx context.Context, now time.Time) (reminders.Result, error)
}

// AdminDispatchReminders runs one reminder pass on demand. The dedup window
// keeps it safe to call alongside the cron worker.
func AdminDispatchReminders(svc reminderDispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reminder service unavailable"))
			return
		}
		res, err := svc.Dispatch(r.Context(), time.Now().UTC())
		if err != nil && res.Upcoming+res.Overdue == 0 {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil && logg != nil {
			logg.Error(r.Context(), "reminder dispatch partially failed", err)
		}
		responses.WriteSuccess(w, "Payment reminders dispatched", res)
	}
}
