package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/venuepay-backend/internal/testsupport"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
)

func seedBooking(t *testing.T, r Repository) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		CustomerName:  "Ana Ruiz",
		CustomerEmail: "ana@example.com",
		VenueName:     "Hacienda San Miguel",
		EventDate:     time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		Status:        enums.BookingStatusPending,
		TotalAmount:   decimal.RequireFromString("1500.00"),
		Currency:      enums.CurrencyUSD,
	}
	require.NoError(t, r.Create(context.Background(), booking))
	return booking
}

func TestFindByIDNotFound(t *testing.T) {
	r := NewRepository(testsupport.OpenSQLite(t))
	_, err := r.FindByID(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestCreateAndFind(t *testing.T) {
	r := NewRepository(testsupport.OpenSQLite(t))
	booking := seedBooking(t, r)

	got, err := r.FindByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hacienda San Miguel", got.VenueName)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("1500")))
	assert.Nil(t, got.PaymentIntentID)
}

func TestAttachPaymentIntentAndPreload(t *testing.T) {
	db := testsupport.OpenSQLite(t)
	r := NewRepository(db)
	booking := seedBooking(t, r)
	ctx := context.Background()

	intent := &models.PaymentIntent{
		ID:               uuid.New(),
		BookingID:        booking.ID,
		Status:           enums.PaymentIntentStatusSucceeded,
		PaymentStructure: enums.PaymentStructureFull,
		Amount:           booking.TotalAmount,
		RemainingAmount:  decimal.Zero,
		Currency:         enums.CurrencyUSD,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
		Version:          1,
	}
	require.NoError(t, db.Create(intent).Error)
	require.NoError(t, r.AttachPaymentIntent(ctx, booking.ID, intent.ID))

	got, err := r.FindWithPaymentIntent(ctx, booking.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentIntent)
	assert.Equal(t, intent.ID, got.PaymentIntent.ID)
	assert.Equal(t, enums.PaymentIntentStatusSucceeded, got.PaymentIntent.Status)

	err = r.AttachPaymentIntent(ctx, uuid.New(), intent.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateStatusIsConditional(t *testing.T) {
	r := NewRepository(testsupport.OpenSQLite(t))
	booking := seedBooking(t, r)
	ctx := context.Background()

	changed, err := r.UpdateStatus(ctx, booking.ID, []enums.BookingStatus{enums.BookingStatusConfirmed}, enums.BookingStatusRefunded)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = r.UpdateStatus(ctx, booking.ID, []enums.BookingStatus{enums.BookingStatusPending}, enums.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := r.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusConfirmed, got.Status)
}

func TestMarkRefunded(t *testing.T) {
	r := NewRepository(testsupport.OpenSQLite(t))
	booking := seedBooking(t, r)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.MarkRefunded(ctx, booking.ID, "re_123", at))

	got, err := r.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusRefunded, got.Status)
	require.NotNil(t, got.RefundID)
	assert.Equal(t, "re_123", *got.RefundID)
	require.NotNil(t, got.RefundedAt)
	assert.True(t, got.RefundedAt.Equal(at))
}
