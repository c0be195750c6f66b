package paymentintents

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

var terminalStatuses = []enums.PaymentIntentStatus{
	enums.PaymentIntentStatusSucceeded,
	enums.PaymentIntentStatusRefunded,
	enums.PaymentIntentStatusExpired,
	enums.PaymentIntentStatusCancelled,
}

// Repository defines persistence operations for payment intents. Every status
// mutation is a conditional update that reports whether it won.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByGatewayPaymentIntent(ctx context.Context, gatewayID string) (*models.PaymentIntent, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentIntentStatus, extra map[string]any) (bool, error)
	TransitionSecondStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentIntentStatus, extra map[string]any) (bool, error)
	AttachSecondPayment(ctx context.Context, id uuid.UUID, expectedVersion int, link SecondLink) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, int64, error)
}

// SecondLink is the gateway link data persisted for a second payment.
type SecondLink struct {
	LinkID    string
	ProductID *string
	ExpiresAt time.Time
}

type repository struct {
	repo.Base
}

// NewRepository builds a payment intent repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	if intent.Version == 0 {
		intent.Version = 1
	}
	return r.DB(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.DB(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("payment intent")
		}
		return nil, err
	}
	return &intent, nil
}

// FindByGatewayPaymentIntent matches either the primary or the second gateway
// payment intent id.
func (r *repository) FindByGatewayPaymentIntent(ctx context.Context, gatewayID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.DB(ctx).
		Where("stripe_payment_intent_id = ? OR second_stripe_payment_intent_id = ?", gatewayID, gatewayID).
		First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("payment intent")
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentIntentStatus, extra map[string]any) (bool, error) {
	updates := versioned(extra)
	updates["status"] = to
	res := r.DB(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) TransitionSecondStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentIntentStatus, extra map[string]any) (bool, error) {
	updates := versioned(extra)
	updates["second_payment_status"] = to
	res := r.DB(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND second_payment_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AttachSecondPayment stores a new second link only when no open second link
// exists and nobody else changed the row since expectedVersion was read.
func (r *repository) AttachSecondPayment(ctx context.Context, id uuid.UUID, expectedVersion int, link SecondLink) (bool, error) {
	updates := versioned(map[string]any{
		"second_payment_link_id":          link.LinkID,
		"second_payment_status":           enums.PaymentIntentStatusCreated,
		"second_payment_expires_at":       link.ExpiresAt,
		"second_stripe_payment_intent_id": nil,
	})
	if link.ProductID != nil {
		updates["stripe_product_id"] = *link.ProductID
	}
	res := r.DB(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Where("second_payment_link_id IS NULL OR second_payment_status IN ?", terminalStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExpireStale flips every CREATED primary and second payment whose expiry has
// passed. It returns the number of primary and second payments expired.
func (r *repository) ExpireStale(ctx context.Context, now time.Time) (int64, int64, error) {
	var primary, second int64
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentIntent{}).
			Where("status = ? AND expires_at <= ?", enums.PaymentIntentStatusCreated, now).
			Updates(versioned(map[string]any{"status": enums.PaymentIntentStatusExpired}))
		if res.Error != nil {
			return res.Error
		}
		primary = res.RowsAffected

		res = tx.Model(&models.PaymentIntent{}).
			Where("second_payment_status = ? AND second_payment_expires_at <= ?", enums.PaymentIntentStatusCreated, now).
			Updates(versioned(map[string]any{"second_payment_status": enums.PaymentIntentStatusExpired}))
		if res.Error != nil {
			return res.Error
		}
		second = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return primary, second, nil
}

func versioned(extra map[string]any) map[string]any {
	updates := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now().UTC()
	return updates
}
