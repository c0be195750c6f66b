// Package lifecycle holds the status machines for payment intents and plan stages.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/qmuntal/stateless"

	"github.com/angelmondragon/venuepay-backend/pkg/enums"
)

// Trigger is an event that may move a payment record to another status.
type Trigger string

const (
	TriggerPay             Trigger = "pay"
	TriggerExpire          Trigger = "expire"
	TriggerCancel          Trigger = "cancel"
	TriggerRefund          Trigger = "refund"
	TriggerStartCheckout   Trigger = "start_checkout"
	TriggerCheckoutExpired Trigger = "checkout_expired"
)

// ErrInvalidTransition is returned when a trigger is not permitted from the current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// NextIntentStatus resolves the status a payment intent (primary or second
// payment) moves to when trigger fires. A link that expired locally can still
// be settled by a late gateway payment.
func NextIntentStatus(ctx context.Context, from enums.PaymentIntentStatus, trigger Trigger) (enums.PaymentIntentStatus, error) {
	machine := stateless.NewStateMachine(from)

	machine.Configure(enums.PaymentIntentStatusCreated).
		Permit(TriggerPay, enums.PaymentIntentStatusSucceeded).
		Permit(TriggerExpire, enums.PaymentIntentStatusExpired).
		Permit(TriggerCancel, enums.PaymentIntentStatusCancelled)

	machine.Configure(enums.PaymentIntentStatusExpired).
		Permit(TriggerPay, enums.PaymentIntentStatusSucceeded)

	machine.Configure(enums.PaymentIntentStatusSucceeded).
		Permit(TriggerRefund, enums.PaymentIntentStatusRefunded)

	machine.Configure(enums.PaymentIntentStatusRefunded)
	machine.Configure(enums.PaymentIntentStatusCancelled)

	next, err := fire(ctx, machine, trigger)
	if err != nil {
		return from, fmt.Errorf("%w: payment %s on %s", err, trigger, from)
	}
	return next.(enums.PaymentIntentStatus), nil
}

// NextStageStatus resolves the status a payment stage moves to when trigger fires.
func NextStageStatus(ctx context.Context, from enums.PaymentStageStatus, trigger Trigger) (enums.PaymentStageStatus, error) {
	machine := stateless.NewStateMachine(from)

	machine.Configure(enums.PaymentStageStatusPending).
		Permit(TriggerStartCheckout, enums.PaymentStageStatusProcessing).
		Permit(TriggerPay, enums.PaymentStageStatusPaid)

	machine.Configure(enums.PaymentStageStatusProcessing).
		Permit(TriggerPay, enums.PaymentStageStatusPaid).
		Permit(TriggerCheckoutExpired, enums.PaymentStageStatusPending)

	machine.Configure(enums.PaymentStageStatusPaid)

	next, err := fire(ctx, machine, trigger)
	if err != nil {
		return from, fmt.Errorf("%w: stage %s on %s", err, trigger, from)
	}
	return next.(enums.PaymentStageStatus), nil
}

func fire(ctx context.Context, machine *stateless.StateMachine, trigger Trigger) (stateless.State, error) {
	if err := machine.FireCtx(ctx, trigger); err != nil {
		return nil, ErrInvalidTransition
	}
	return machine.State(ctx)
}
