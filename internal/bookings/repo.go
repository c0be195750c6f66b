// Package bookings persists venue bookings.
package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/venuepay-backend/internal/repo"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
)

// Repository defines persistence operations for bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindWithPaymentIntent(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	AttachPaymentIntent(ctx context.Context, bookingID, paymentIntentID uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.BookingStatus, to enums.BookingStatus) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, refundID string, at time.Time) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	return r.DB(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.DB(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, notFound(err)
	}
	return &booking, nil
}

func (r *repository) FindWithPaymentIntent(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.DB(ctx).
		Preload("PaymentIntent").
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &booking, nil
}

func (r *repository) AttachPaymentIntent(ctx context.Context, bookingID, paymentIntentID uuid.UUID) error {
	res := r.DB(ctx).
		Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]any{
			"payment_intent_id": paymentIntentID,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.NotFound("booking")
	}
	return nil
}

// UpdateStatus moves the booking to `to` only while it is in one of `from`.
// It reports whether a row changed.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.BookingStatus, to enums.BookingStatus) (bool, error) {
	q := r.DB(ctx).Model(&models.Booking{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Updates(map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, refundID string, at time.Time) error {
	updates := map[string]any{
		"status":      enums.BookingStatusRefunded,
		"refunded_at": at,
		"updated_at":  time.Now().UTC(),
	}
	if refundID != "" {
		updates["refund_id"] = refundID
	}
	return r.DB(ctx).Model(&models.Booking{}).Where("id = ?", id).Updates(updates).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.NotFound("booking")
	}
	return err
}
