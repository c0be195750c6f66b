package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/venuepay-backend/internal/bookings"
	"github.com/angelmondragon/venuepay-backend/internal/paymentintents"
	"github.com/angelmondragon/venuepay-backend/internal/testsupport"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/stripe"
)

type fixture struct {
	svc      Service
	bookings bookings.Repository
	intents  paymentintents.Repository
	gateway  *testsupport.FakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testsupport.OpenSQLite(t)
	f := &fixture{
		bookings: bookings.NewRepository(conn),
		intents:  paymentintents.NewRepository(conn),
		gateway:  testsupport.NewFakeGateway(),
	}
	svc, err := NewService(ServiceParams{Bookings: f.bookings, Gateway: f.gateway})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) seed(t *testing.T, status enums.BookingStatus, total string, gatewayIntent *string) *models.Booking {
	t.Helper()
	ctx := context.Background()
	booking := &models.Booking{
		CustomerName:  "Ana Ruiz",
		CustomerEmail: "ana@example.com",
		VenueName:     "Hacienda San Miguel",
		EventDate:     time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		Status:        status,
		TotalAmount:   decimal.RequireFromString(total),
		Currency:      enums.CurrencyUSD,
	}
	require.NoError(t, f.bookings.Create(ctx, booking))
	intent := &models.PaymentIntent{
		BookingID:             booking.ID,
		Status:                enums.PaymentIntentStatusSucceeded,
		PaymentStructure:      enums.PaymentStructureFull,
		Amount:                decimal.RequireFromString("150.00"),
		RemainingAmount:       decimal.Zero,
		Currency:              enums.CurrencyUSD,
		StripePaymentIntentID: gatewayIntent,
		ExpiresAt:             time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.intents.Create(ctx, intent))
	require.NoError(t, f.bookings.AttachPaymentIntent(ctx, booking.ID, intent.ID))
	return booking
}

func TestRefundBookingFullAmount(t *testing.T) {
	f := newFixture(t)
	pi := "pi_123"
	booking := f.seed(t, enums.BookingStatusConfirmed, "150.00", &pi)

	res, err := f.svc.RefundBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.00", res.RefundAmount.StringFixed(2))
	assert.NotEmpty(t, res.RefundID)

	require.Len(t, f.gateway.Refunds, 1)
	sent := f.gateway.Refunds[0]
	assert.Equal(t, "pi_123", sent.PaymentIntentID)
	assert.Equal(t, int64(15000), stripe.ToMinorUnits(sent.Amount))
	assert.Equal(t, booking.ID.String(), sent.Metadata[stripe.MetadataBookingID])

	// the booking only changes once settlement confirms the refund
	stored, err := f.bookings.FindByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusConfirmed, stored.Status)
}

func TestRefundBookingPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pi := "pi_456"

	refunded := f.seed(t, enums.BookingStatusRefunded, "150.00", &pi)
	_, err := f.svc.RefundBooking(ctx, refunded.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidState))

	unpaid := f.seed(t, enums.BookingStatusPending, "150.00", nil)
	_, err = f.svc.RefundBooking(ctx, unpaid.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidState))

	free := f.seed(t, enums.BookingStatusConfirmed, "0", &pi)
	_, err = f.svc.RefundBooking(ctx, free.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidState))

	_, err = f.svc.RefundBooking(ctx, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, f.gateway.Refunds)
}
