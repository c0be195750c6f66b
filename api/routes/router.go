package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/venuepay-backend/api/controllers"
	intentcontrollers "github.com/angelmondragon/venuepay-backend/api/controllers/paymentintents"
	plancontrollers "github.com/angelmondragon/venuepay-backend/api/controllers/paymentplans"
	webhookcontrollers "github.com/angelmondragon/venuepay-backend/api/controllers/webhooks"
	"github.com/angelmondragon/venuepay-backend/api/middleware"
	"github.com/angelmondragon/venuepay-backend/internal/paymentintents"
	"github.com/angelmondragon/venuepay-backend/internal/paymentplans"
	"github.com/angelmondragon/venuepay-backend/internal/refunds"
	"github.com/angelmondragon/venuepay-backend/internal/reminders"
	"github.com/angelmondragon/venuepay-backend/internal/settlement"
	"github.com/angelmondragon/venuepay-backend/pkg/config"
	"github.com/angelmondragon/venuepay-backend/pkg/db"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
	"github.com/angelmondragon/venuepay-backend/pkg/redis"
	"github.com/angelmondragon/venuepay-backend/pkg/stripe"
)

// Dependencies is everything the router hands to controllers. Redis and the
// webhook guard are optional.
type Dependencies struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          *redis.Client
	PaymentIntents paymentintents.Service
	PaymentPlans   paymentplans.Service
	Refunds        refunds.Service
	Reminders      *reminders.Service
	Settlement     *settlement.Reconciler
	WebhookGuard   *settlement.IdempotencyGuard
	Stripe         *stripe.Client
	Metrics        http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Frontend),
	)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["db"] = deps.DB
	}
	var idempotencyStore redis.IdempotencyStore
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
		idempotencyStore = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	var guard webhookcontrollers.EventGuard
	if deps.WebhookGuard != nil {
		guard = deps.WebhookGuard
	}
	var settler webhookcontrollers.EventHandler
	if deps.Settlement != nil {
		settler = deps.Settlement
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(settler, stripeVerifier(deps.Stripe), guard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Post("/bookings/{bookingId}/payment-intent", intentcontrollers.Create(deps.PaymentIntents, logg))
			r.Post("/bookings/{bookingId}/partial-refund", controllers.BookingPartialRefund(deps.Refunds, logg))

			r.Route("/payment-intent", func(r chi.Router) {
				r.Get("/{id}", intentcontrollers.Get(deps.PaymentIntents, logg))
				r.Get("/{id}/check-status", intentcontrollers.CheckStatus(deps.PaymentIntents, logg))
				r.Get("/{id}/check-second-payment-status", intentcontrollers.CheckSecondPaymentStatus(deps.PaymentIntents, logg))
				r.Post("/{paymentIntentId}/create-second-payment", intentcontrollers.CreateSecondPayment(deps.PaymentIntents, logg))
				r.Post("/{paymentIntentId}/send-reminder", intentcontrollers.SendReminder(deps.PaymentIntents, logg))
				r.Post("/{paymentIntentId}/cancel", intentcontrollers.Cancel(deps.PaymentIntents, logg))
			})

			r.Route("/proposals/{proposalId}/payment-plan", func(r chi.Router) {
				r.Get("/", plancontrollers.GetPlan(deps.PaymentPlans, logg))
				r.Post("/", plancontrollers.ReplacePlan(deps.PaymentPlans, logg))
			})
			r.Route("/payment-stages/{stageId}", func(r chi.Router) {
				r.Post("/create-intent", plancontrollers.CreateStageIntent(deps.PaymentPlans, logg))
				r.Delete("/", plancontrollers.DeleteStage(deps.PaymentPlans, logg))
			})
			r.Post("/service-requests/{requestId}/accept", plancontrollers.AcceptServiceRequest(deps.PaymentPlans, logg))
		})

		if deps.Reminders != nil {
			r.Post("/admin/payment-reminders/dispatch", controllers.AdminDispatchReminders(deps.Reminders, logg))
		}
	})

	return r
}

// stripeVerifier avoids handing a typed nil client to the webhook controller.
func stripeVerifier(client *stripe.Client) webhookcontrollers.EventVerifier {
	if client == nil {
		return nil
	}
	return client
}
