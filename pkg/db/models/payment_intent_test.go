package models

import (
	"testing"
	"time"

	"github.com/angelmondragon/venuepay-backend/pkg/enums"
)

func TestPaymentIntentPrimaryExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	intent := PaymentIntent{ExpiresAt: now.Add(-time.Second)}
	if !intent.PrimaryExpired(now) {
		t.Fatalf("expected link to be expired")
	}
	intent.ExpiresAt = now.Add(time.Minute)
	if intent.PrimaryExpired(now) {
		t.Fatalf("expected link to be live")
	}
}

func TestPaymentIntentHasOpenSecondPayment(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	linkID := "plink_2"
	created := enums.PaymentIntentStatusCreated
	succeeded := enums.PaymentIntentStatusSucceeded
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name   string
		intent PaymentIntent
		want   bool
	}{
		{"no link", PaymentIntent{}, false},
		{"open", PaymentIntent{SecondPaymentLinkID: &linkID, SecondPaymentStatus: &created, SecondPaymentExpiresAt: &future}, true},
		{"expired", PaymentIntent{SecondPaymentLinkID: &linkID, SecondPaymentStatus: &created, SecondPaymentExpiresAt: &past}, false},
		{"paid", PaymentIntent{SecondPaymentLinkID: &linkID, SecondPaymentStatus: &succeeded, SecondPaymentExpiresAt: &future}, false},
	}
	for _, tc := range cases {
		if got := tc.intent.HasOpenSecondPayment(now); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}
