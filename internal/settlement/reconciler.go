package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/venuepay-backend/internal/bookings"
	"github.com/angelmondragon/venuepay-backend/internal/paymentintents"
	"github.com/angelmondragon/venuepay-backend/internal/paymentplans"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/lifecycle"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
	"github.com/angelmondragon/venuepay-backend/pkg/metrics"
	gateway "github.com/angelmondragon/venuepay-backend/pkg/stripe"
)

const (
	outcomeApplied = "applied"
	outcomeIgnored = "ignored"
)

// errSkip marks an event that no longer applies to local state.
var errSkip = errors.New("settlement skipped")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ReconcilerParams struct {
	Intents           paymentintents.Repository
	Bookings          bookings.Repository
	Plans             paymentplans.Repository
	TransactionRunner txRunner
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
	Clock             func() time.Time
}

// Reconciler applies settlement events. Gateways deliver at least once, so
// events that no longer fit the current state are logged and dropped.
type Reconciler struct {
	intents  paymentintents.Repository
	bookings bookings.Repository
	plans    paymentplans.Repository
	tx       txRunner
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment intent repo required")
	}
	if params.Bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking repo required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment plan repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		intents:  params.Intents,
		bookings: params.Bookings,
		plans:    params.Plans,
		tx:       params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

// HandleEvent settles a verified Stripe webhook event.
func (r *Reconciler) HandleEvent(ctx context.Context, event *stripe.Event) error {
	ev, err := FromStripeEvent(event)
	if err != nil {
		return err
	}
	if ev == nil {
		r.logg.Debug(r.logg.WithField(ctx, "stripe_event_type", string(event.Type)), "stripe event carries nothing to settle")
		return nil
	}
	return r.Apply(ctx, *ev)
}

// Apply moves local records to match ev.
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"settlement_kind": string(ev.Kind),
		"payment_kind":    string(ev.PaymentKind),
		"reference_id":    ev.ReferenceID,
		"event_id":        ev.ID,
	})

	var err error
	switch ev.Kind {
	case KindPaymentSucceeded:
		err = r.applySucceeded(ctx, ev)
	case KindPaymentRefunded:
		err = r.applyRefunded(ctx, ev)
	case KindPaymentExpired:
		err = r.applyExpired(ctx, ev)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown settlement kind %q", ev.Kind))
	}

	label := string(ev.PaymentKind)
	if label == "" {
		label = string(ev.Kind)
	}
	if errors.Is(err, errSkip) {
		r.metrics.IncSettlement(label, outcomeIgnored)
		return nil
	}
	if err != nil {
		return err
	}
	r.metrics.IncSettlement(label, outcomeApplied)
	r.logg.Info(ctx, "settlement applied")
	return nil
}

func (r *Reconciler) applySucceeded(ctx context.Context, ev Event) error {
	switch ev.PaymentKind {
	case gateway.PaymentKindStage:
		return r.settleStage(ctx, ev, lifecycle.TriggerPay)
	case gateway.PaymentKindSecond:
		intent, err := r.resolveIntent(ctx, ev)
		if err != nil {
			return err
		}
		if intent.SecondPaymentStatus == nil {
			return r.skip(ctx, "second payment was never issued")
		}
		from := *intent.SecondPaymentStatus
		next, err := lifecycle.NextIntentStatus(ctx, from, lifecycle.TriggerPay)
		if err != nil {
			return r.skip(ctx, fmt.Sprintf("second payment cannot settle from %s", from))
		}
		extra := map[string]any{"remaining_amount": decimal.Zero}
		if ev.GatewayPaymentIntentID != "" {
			extra["second_stripe_payment_intent_id"] = ev.GatewayPaymentIntentID
		}
		won, err := r.intents.TransitionSecondStatus(ctx, intent.ID, from, next, extra)
		return r.conditional(won, err)
	default:
		intent, err := r.resolveIntent(ctx, ev)
		if err != nil {
			return err
		}
		next, err := lifecycle.NextIntentStatus(ctx, intent.Status, lifecycle.TriggerPay)
		if err != nil {
			return r.skip(ctx, fmt.Sprintf("payment intent cannot settle from %s", intent.Status))
		}
		if intent.Status == enums.PaymentIntentStatusExpired {
			r.logg.Warn(ctx, "payment settled after the link expired")
		}
		extra := map[string]any{}
		if ev.GatewayPaymentIntentID != "" {
			extra["stripe_payment_intent_id"] = ev.GatewayPaymentIntentID
		}
		return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
			won, err := r.intents.WithTx(tx).TransitionStatus(ctx, intent.ID, intent.Status, next, extra)
			if err := r.conditional(won, err); err != nil {
				return err
			}
			_, err = r.bookings.WithTx(tx).UpdateStatus(ctx, intent.BookingID, []enums.BookingStatus{enums.BookingStatusPending}, enums.BookingStatusConfirmed)
			return err
		})
	}
}

func (r *Reconciler) applyRefunded(ctx context.Context, ev Event) error {
	intent, err := r.resolveIntent(ctx, ev)
	if err != nil {
		return err
	}
	next, err := lifecycle.NextIntentStatus(ctx, intent.Status, lifecycle.TriggerRefund)
	if err != nil {
		return r.skip(ctx, fmt.Sprintf("payment intent cannot be refunded from %s", intent.Status))
	}
	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		intents := r.intents.WithTx(tx)
		won, err := intents.TransitionStatus(ctx, intent.ID, intent.Status, next, nil)
		if err := r.conditional(won, err); err != nil {
			return err
		}
		if intent.SecondPaymentStatus != nil && *intent.SecondPaymentStatus == enums.PaymentIntentStatusSucceeded {
			if _, err := intents.TransitionSecondStatus(ctx, intent.ID, enums.PaymentIntentStatusSucceeded, enums.PaymentIntentStatusRefunded, nil); err != nil {
				return err
			}
		}
		return r.bookings.WithTx(tx).MarkRefunded(ctx, intent.BookingID, ev.RefundID, r.now())
	})
}

func (r *Reconciler) applyExpired(ctx context.Context, ev Event) error {
	switch ev.PaymentKind {
	case gateway.PaymentKindStage:
		return r.settleStage(ctx, ev, lifecycle.TriggerCheckoutExpired)
	case gateway.PaymentKindSecond:
		intent, err := r.resolveIntent(ctx, ev)
		if err != nil {
			return err
		}
		if intent.SecondPaymentStatus == nil {
			return r.skip(ctx, "second payment was never issued")
		}
		from := *intent.SecondPaymentStatus
		next, err := lifecycle.NextIntentStatus(ctx, from, lifecycle.TriggerExpire)
		if err != nil {
			return r.skip(ctx, fmt.Sprintf("second payment cannot expire from %s", from))
		}
		won, err := r.intents.TransitionSecondStatus(ctx, intent.ID, from, next, nil)
		return r.conditional(won, err)
	default:
		intent, err := r.resolveIntent(ctx, ev)
		if err != nil {
			return err
		}
		next, err := lifecycle.NextIntentStatus(ctx, intent.Status, lifecycle.TriggerExpire)
		if err != nil {
			return r.skip(ctx, fmt.Sprintf("payment intent cannot expire from %s", intent.Status))
		}
		won, err := r.intents.TransitionStatus(ctx, intent.ID, intent.Status, next, nil)
		return r.conditional(won, err)
	}
}

func (r *Reconciler) settleStage(ctx context.Context, ev Event, trigger lifecycle.Trigger) error {
	stageID, err := uuid.Parse(ev.ReferenceID)
	if err != nil {
		return r.skip(ctx, "stage reference is not a uuid")
	}
	stage, err := r.plans.FindStage(ctx, stageID)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return r.skip(ctx, "payment stage not found")
	}
	if err != nil {
		return err
	}
	ctx = r.logg.WithStageID(ctx, stage.ID.String())

	next, err := lifecycle.NextStageStatus(ctx, stage.Status, trigger)
	if err != nil {
		return r.skip(ctx, fmt.Sprintf("payment stage cannot move from %s on %s", stage.Status, trigger))
	}

	extra := map[string]any{}
	switch trigger {
	case lifecycle.TriggerPay:
		extra["paid_at"] = r.now()
		if ev.GatewayPaymentIntentID != "" {
			extra["stripe_payment_intent_id"] = ev.GatewayPaymentIntentID
		}
	case lifecycle.TriggerCheckoutExpired:
		if !sameSession(stage, ev.GatewaySessionID) {
			return r.skip(ctx, "expired checkout session is not the stage's current session")
		}
		extra["stripe_checkout_session_id"] = nil
		extra["stripe_payment_url"] = nil
	}
	won, err := r.plans.TransitionStage(ctx, stage.ID, []enums.PaymentStageStatus{stage.Status}, next, extra)
	return r.conditional(won, err)
}

func (r *Reconciler) resolveIntent(ctx context.Context, ev Event) (*models.PaymentIntent, error) {
	var (
		intent *models.PaymentIntent
		err    error
	)
	if id, parseErr := uuid.Parse(ev.ReferenceID); parseErr == nil {
		intent, err = r.intents.FindByID(ctx, id)
	} else if ev.GatewayPaymentIntentID != "" {
		intent, err = r.intents.FindByGatewayPaymentIntent(ctx, ev.GatewayPaymentIntentID)
	} else {
		return nil, r.skip(ctx, "event does not reference a payment intent")
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return nil, r.skip(ctx, "payment intent not found")
	}
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// conditional turns a lost conditional write into a retryable conflict.
func (r *Reconciler) conditional(won bool, err error) error {
	if err != nil {
		return err
	}
	if !won {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment record changed during settlement")
	}
	return nil
}

func (r *Reconciler) skip(ctx context.Context, reason string) error {
	r.logg.Warn(r.logg.WithField(ctx, "reason", reason), "settlement event ignored")
	return errSkip
}

func sameSession(stage *models.PaymentStage, sessionID string) bool {
	if sessionID == "" || stage.StripeCheckoutSessionID == nil {
		return true
	}
	return *stage.StripeCheckoutSessionID == sessionID
}
