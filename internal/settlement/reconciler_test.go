package settlement

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/venuepay-backend/internal/bookings"
	"github.com/angelmondragon/venuepay-backend/internal/paymentintents"
	"github.com/angelmondragon/venuepay-backend/internal/paymentplans"
	"github.com/angelmondragon/venuepay-backend/internal/testsupport"
	"github.com/angelmondragon/venuepay-backend/pkg/db"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
	gateway "github.com/angelmondragon/venuepay-backend/pkg/stripe"
)

var settledAt = time.Date(2026, 5, 3, 15, 0, 0, 0, time.UTC)

type fixture struct {
	conn       *gorm.DB
	reconciler *Reconciler
	intents    paymentintents.Repository
	bookings   bookings.Repository
	plans      paymentplans.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testsupport.OpenSQLite(t)
	f := &fixture{
		conn:     conn,
		intents:  paymentintents.NewRepository(conn),
		bookings: bookings.NewRepository(conn),
		plans:    paymentplans.NewRepository(conn),
	}
	r, err := NewReconciler(ReconcilerParams{
		Intents:           f.intents,
		Bookings:          f.bookings,
		Plans:             f.plans,
		TransactionRunner: db.NewFromGorm(conn),
		Logger:            logger.New(logger.Options{ServiceName: "settlement-test", Output: &bytes.Buffer{}}),
		Clock:             func() time.Time { return settledAt },
	})
	require.NoError(t, err)
	f.reconciler = r
	return f
}

func (f *fixture) seedIntent(t *testing.T, mutate func(*models.PaymentIntent)) *models.PaymentIntent {
	t.Helper()
	ctx := context.Background()
	booking := &models.Booking{
		CustomerName:  "Ana Ruiz",
		CustomerEmail: "ana@example.com",
		VenueName:     "Hacienda San Miguel",
		EventDate:     settledAt.AddDate(0, 2, 0),
		Status:        enums.BookingStatusPending,
		TotalAmount:   decimal.NewFromInt(1000),
		Currency:      enums.CurrencyUSD,
	}
	require.NoError(t, f.bookings.Create(ctx, booking))
	intent := &models.PaymentIntent{
		BookingID:        booking.ID,
		Status:           enums.PaymentIntentStatusCreated,
		PaymentStructure: enums.PaymentStructureSplit,
		Amount:           decimal.NewFromInt(500),
		RemainingAmount:  decimal.NewFromInt(500),
		Currency:         enums.CurrencyUSD,
		ExpiresAt:        settledAt.Add(time.Hour),
	}
	if mutate != nil {
		mutate(intent)
	}
	require.NoError(t, f.intents.Create(ctx, intent))
	require.NoError(t, f.bookings.AttachPaymentIntent(ctx, booking.ID, intent.ID))
	return intent
}

func (f *fixture) seedStage(t *testing.T, status enums.PaymentStageStatus, sessionID *string) *models.PaymentStage {
	t.Helper()
	ctx := context.Background()
	proposal := &models.Proposal{CustomerName: "Luis", CustomerEmail: "luis@example.com", Title: "Gala", Currency: enums.CurrencyUSD, Status: enums.ProposalStatusAccepted}
	require.NoError(t, f.plans.CreateProposal(ctx, proposal))
	plan := &models.PaymentPlan{ProposalID: proposal.ID, TotalAmount: decimal.NewFromInt(100), Currency: enums.CurrencyUSD}
	require.NoError(t, f.plans.CreatePlan(ctx, plan))
	url := "https://checkout.stripe.test/cs"
	stage := &models.PaymentStage{
		PaymentPlanID:           plan.ID,
		Description:             "Deposit",
		Amount:                  decimal.NewFromInt(100),
		DueDate:                 settledAt.AddDate(0, 0, 5),
		Status:                  status,
		StripeCheckoutSessionID: sessionID,
		StripePaymentURL:        &url,
	}
	require.NoError(t, f.plans.CreateStage(ctx, stage))
	return stage
}

func TestApplyPrimaryPaymentConfirmsBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	intent := f.seedIntent(t, nil)

	err := f.reconciler.Apply(ctx, Event{
		Kind:                   KindPaymentSucceeded,
		ReferenceID:            intent.ID.String(),
		PaymentKind:            gateway.PaymentKindPrimary,
		GatewayPaymentIntentID: "pi_primary",
	})
	require.NoError(t, err)

	got, err := f.intents.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentStatusSucceeded, got.Status)
	assert.Equal(t, "pi_primary", *got.StripePaymentIntentID)

	booking, err := f.bookings.FindByID(ctx, intent.BookingID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusConfirmed, booking.Status)

	// redelivery is a no-op
	require.NoError(t, f.reconciler.Apply(ctx, Event{
		Kind:        KindPaymentSucceeded,
		ReferenceID: intent.ID.String(),
		PaymentKind: gateway.PaymentKindPrimary,
	}))
}

func TestApplyLatePaymentOnExpiredIntent(t *testing.T) {
	f := newFixture(t)
	intent := f.seedIntent(t, func(p *models.PaymentIntent) {
		p.Status = enums.PaymentIntentStatusExpired
	})
	require.NoError(t, f.reconciler.Apply(context.Background(), Event{
		Kind:        KindPaymentSucceeded,
		ReferenceID: intent.ID.String(),
		PaymentKind: gateway.PaymentKindPrimary,
	}))
	got, err := f.intents.FindByID(context.Background(), intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentStatusSucceeded, got.Status)
}

func TestApplySecondPaymentClearsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := enums.PaymentIntentStatusCreated
	link := "plink_2"
	expires := settledAt.Add(24 * time.Hour)
	intent := f.seedIntent(t, func(p *models.PaymentIntent) {
		p.Status = enums.PaymentIntentStatusSucceeded
		p.SecondPaymentLinkID = &link
		p.SecondPaymentStatus = &created
		p.SecondPaymentExpiresAt = &expires
	})

	require.NoError(t, f.reconciler.Apply(ctx, Event{
		Kind:                   KindPaymentSucceeded,
		ReferenceID:            intent.ID.String(),
		PaymentKind:            gateway.PaymentKindSecond,
		GatewayPaymentIntentID: "pi_second",
	}))

	got, err := f.intents.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentStatusSucceeded, *got.SecondPaymentStatus)
	assert.True(t, got.RemainingAmount.IsZero())
	assert.Equal(t, "pi_second", *got.SecondStripePaymentIntentID)
}

func TestApplyRefundByGatewayPaymentIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pi := "pi_paid"
	intent := f.seedIntent(t, func(p *models.PaymentIntent) {
		p.Status = enums.PaymentIntentStatusSucceeded
		p.StripePaymentIntentID = &pi
	})

	require.NoError(t, f.reconciler.Apply(ctx, Event{
		Kind:                   KindPaymentRefunded,
		GatewayPaymentIntentID: "pi_paid",
		RefundID:               "re_1",
	}))

	got, err := f.intents.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentStatusRefunded, got.Status)

	booking, err := f.bookings.FindByID(ctx, intent.BookingID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusRefunded, booking.Status)
	require.NotNil(t, booking.RefundID)
	assert.Equal(t, "re_1", *booking.RefundID)
}

func TestApplyExpiredIgnoresTerminalIntent(t *testing.T) {
	f := newFixture(t)
	intent := f.seedIntent(t, func(p *models.PaymentIntent) {
		p.Status = enums.PaymentIntentStatusCancelled
	})
	require.NoError(t, f.reconciler.Apply(context.Background(), Event{
		Kind:        KindPaymentExpired,
		ReferenceID: intent.ID.String(),
		PaymentKind: gateway.PaymentKindPrimary,
	}))
	got, err := f.intents.FindByID(context.Background(), intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentStatusCancelled, got.Status)
}

func TestApplyStagePaidAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := "cs_live"
	stage := f.seedStage(t, enums.PaymentStageStatusProcessing, &session)

	// an old session expiring does not reopen the stage
	require.NoError(t, f.reconciler.Apply(ctx, Event{
		Kind:             KindPaymentExpired,
		ReferenceID:      stage.ID.String(),
		PaymentKind:      gateway.PaymentKindStage,
		GatewaySessionID: "cs_old",
	}))
	got, err := f.plans.FindStage(ctx, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStageStatusProcessing, got.Status)

	require.NoError(t, f.reconciler.Apply(ctx, Event{
		Kind:             KindPaymentExpired,
		ReferenceID:      stage.ID.String(),
		PaymentKind:      gateway.PaymentKindStage,
		GatewaySessionID: "cs_live",
	}))
	got, err = f.plans.FindStage(ctx, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStageStatusPending, got.Status)
	assert.Nil(t, got.StripePaymentURL)

	require.NoError(t, f.reconciler.Apply(ctx, Event{
		Kind:                   KindPaymentSucceeded,
		ReferenceID:            stage.ID.String(),
		PaymentKind:            gateway.PaymentKindStage,
		GatewayPaymentIntentID: "pi_stage",
	}))
	got, err = f.plans.FindStage(ctx, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStageStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(settledAt))
}

func TestApplyUnknownReferencesAreIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reconciler.Apply(ctx, Event{
		Kind:        KindPaymentSucceeded,
		ReferenceID: uuid.NewString(),
		PaymentKind: gateway.PaymentKindPrimary,
	}))
	require.NoError(t, f.reconciler.Apply(ctx, Event{
		Kind:        KindPaymentSucceeded,
		ReferenceID: "not-a-uuid",
		PaymentKind: gateway.PaymentKindStage,
	}))
	err := f.reconciler.Apply(ctx, Event{Kind: "Bogus"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestNewReconcilerRequiresDeps(t *testing.T) {
	_, err := NewReconciler(ReconcilerParams{})
	require.Error(t, err)
}
