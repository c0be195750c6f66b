package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/venuepay-backend/pkg/enums"
)

func TestNextIntentStatus(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		from    enums.PaymentIntentStatus
		trigger Trigger
		want    enums.PaymentIntentStatus
		ok      bool
	}{
		{enums.PaymentIntentStatusCreated, TriggerPay, enums.PaymentIntentStatusSucceeded, true},
		{enums.PaymentIntentStatusCreated, TriggerExpire, enums.PaymentIntentStatusExpired, true},
		{enums.PaymentIntentStatusCreated, TriggerCancel, enums.PaymentIntentStatusCancelled, true},
		{enums.PaymentIntentStatusExpired, TriggerPay, enums.PaymentIntentStatusSucceeded, true},
		{enums.PaymentIntentStatusSucceeded, TriggerRefund, enums.PaymentIntentStatusRefunded, true},
		{enums.PaymentIntentStatusCreated, TriggerRefund, "", false},
		{enums.PaymentIntentStatusSucceeded, TriggerExpire, "", false},
		{enums.PaymentIntentStatusCancelled, TriggerPay, "", false},
		{enums.PaymentIntentStatusRefunded, TriggerRefund, "", false},
	}

	for _, tc := range cases {
		got, err := NextIntentStatus(ctx, tc.from, tc.trigger)
		if !tc.ok {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s/%s: expected invalid transition, got %v", tc.from, tc.trigger, err)
			}
			if got != tc.from {
				t.Fatalf("%s/%s: expected status unchanged, got %s", tc.from, tc.trigger, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s/%s: unexpected error %v", tc.from, tc.trigger, err)
		}
		if got != tc.want {
			t.Fatalf("%s/%s: expected %s got %s", tc.from, tc.trigger, tc.want, got)
		}
	}
}

func TestNextStageStatus(t *testing.T) {
	ctx := context.Background()

	got, err := NextStageStatus(ctx, enums.PaymentStageStatusPending, TriggerStartCheckout)
	if err != nil || got != enums.PaymentStageStatusProcessing {
		t.Fatalf("expected processing, got %s (%v)", got, err)
	}
	got, err = NextStageStatus(ctx, enums.PaymentStageStatusProcessing, TriggerPay)
	if err != nil || got != enums.PaymentStageStatusPaid {
		t.Fatalf("expected paid, got %s (%v)", got, err)
	}
	got, err = NextStageStatus(ctx, enums.PaymentStageStatusProcessing, TriggerCheckoutExpired)
	if err != nil || got != enums.PaymentStageStatusPending {
		t.Fatalf("expected pending, got %s (%v)", got, err)
	}
	if _, err := NextStageStatus(ctx, enums.PaymentStageStatusPaid, TriggerStartCheckout); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected paid stage to reject checkout, got %v", err)
	}
}

func TestCancelOnlyFromCreated(t *testing.T) {
	ctx := context.Background()
	got, err := NextIntentStatus(ctx, enums.PaymentIntentStatusCreated, TriggerCancel)
	if err != nil || got != enums.PaymentIntentStatusCancelled {
		t.Fatalf("expected cancelled, got %s (%v)", got, err)
	}
	if _, err := NextIntentStatus(ctx, enums.PaymentIntentStatusSucceeded, TriggerCancel); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("succeeded intent must not be cancellable, got %v", err)
	}
}
