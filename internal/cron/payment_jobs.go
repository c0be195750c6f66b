package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/venuepay-backend/internal/paymentintents"
	"github.com/angelmondragon/venuepay-backend/internal/reminders"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
)

const (
	PaymentRemindersJobName = "payment-reminders"
	IntentExpiryJobName     = "payment-intent-expiry"
)

type reminderDispatcher interface {
	Dispatch(ctx context.Context, now time.Time) (reminders.Result, error)
}

type intentExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (*paymentintents.ExpiryResult, error)
}

// NewPaymentRemindersJob builds the job that sends upcoming and overdue stage reminders.
func NewPaymentRemindersJob(logg *logger.Logger, dispatcher reminderDispatcher, clock func() time.Time) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("reminder dispatcher required")
	}
	return &paymentRemindersJob{logg: logg, dispatcher: dispatcher, now: clockOrNow(clock)}, nil
}

type paymentRemindersJob struct {
	logg       *logger.Logger
	dispatcher reminderDispatcher
	now        func() time.Time
}

func (j *paymentRemindersJob) Name() string { return PaymentRemindersJobName }

func (j *paymentRemindersJob) Run(ctx context.Context) error {
	res, err := j.dispatcher.Dispatch(ctx, j.now())
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"upcoming": res.Upcoming,
		"overdue":  res.Overdue,
		"skipped":  res.Skipped,
		"failed":   res.Failed,
	})
	j.logg.Info(logCtx, "payment reminders dispatched")
	return err
}

// NewIntentExpiryJob builds the job that expires payment links past their deadline.
func NewIntentExpiryJob(logg *logger.Logger, expirer intentExpirer, clock func() time.Time) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if expirer == nil {
		return nil, fmt.Errorf("intent expirer required")
	}
	return &intentExpiryJob{logg: logg, expirer: expirer, now: clockOrNow(clock)}, nil
}

type intentExpiryJob struct {
	logg    *logger.Logger
	expirer intentExpirer
	now     func() time.Time
}

func (j *intentExpiryJob) Name() string { return IntentExpiryJobName }

func (j *intentExpiryJob) Run(ctx context.Context) error {
	res, err := j.expirer.ExpireStale(ctx, j.now())
	if err != nil {
		return err
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"primary_expired": res.Primary,
		"second_expired":  res.Second,
	})
	j.logg.Info(logCtx, "payment link expiry sweep complete")
	return nil
}

func clockOrNow(clock func() time.Time) func() time.Time {
	if clock != nil {
		return clock
	}
	return func() time.Time { return time.Now().UTC() }
}
