// Package paymentintents runs the booking payment lifecycle: the primary
// payment link, the optional second (split) payment link, status checks,
// reminders and expiry.
package paymentintents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/venuepay-backend/internal/bookings"
	"github.com/angelmondragon/venuepay-backend/internal/emails"
	"github.com/angelmondragon/venuepay-backend/pkg/config"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/lifecycle"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
	"github.com/angelmondragon/venuepay-backend/pkg/metrics"
	"github.com/angelmondragon/venuepay-backend/pkg/stripe"
	"github.com/angelmondragon/venuepay-backend/pkg/types"
)

const (
	msgLinkExpired       = "Payment link is expired"
	maxSecondExpiryHours = 24 * 30
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Send(ctx context.Context, to emails.Recipient, templateType emails.TemplateType, data emails.Data) error
	SendAsync(ctx context.Context, to emails.Recipient, templateType emails.TemplateType, data emails.Data)
}

// Service defines the payment intent operations exposed to controllers and jobs.
type Service interface {
	Create(ctx context.Context, bookingID uuid.UUID, structure enums.PaymentStructure) (*CreateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	CheckStatus(ctx context.Context, id uuid.UUID) (string, error)
	CreateSecondPayment(ctx context.Context, id uuid.UUID, expiresInHours *int) (*SecondPaymentResult, error)
	CheckSecondPaymentStatus(ctx context.Context, id uuid.UUID) (string, error)
	SendReminder(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	ExpireStale(ctx context.Context, now time.Time) (*ExpiryResult, error)
}

// CreateResult is returned when a primary payment link is issued.
type CreateResult struct {
	PaymentIntent *models.PaymentIntent `json:"paymentIntent"`
	PaymentURL    string                `json:"paymentUrl"`
}

// SecondPaymentResult is returned when a second payment link is issued.
type SecondPaymentResult struct {
	PaymentLinkID string                    `json:"paymentLinkId"`
	PaymentURL    string                    `json:"paymentUrl"`
	ExpiresAt     time.Time                 `json:"expiresAt"`
	Status        enums.PaymentIntentStatus `json:"status"`
}

// ExpiryResult counts the payments an expiry sweep closed.
type ExpiryResult struct {
	Primary int64 `json:"primary"`
	Second  int64 `json:"second"`
}

type ServiceParams struct {
	Repo              Repository
	Bookings          bookings.Repository
	Gateway           stripe.Gateway
	Notifier          notifier
	TransactionRunner txRunner
	Frontend          config.FrontendConfig
	Payments          config.PaymentsConfig
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo     Repository
	bookings bookings.Repository
	gateway  stripe.Gateway
	notifier notifier
	tx       txRunner
	frontend config.FrontendConfig
	payments config.PaymentsConfig
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the payment intent service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment intent repo required")
	}
	if params.Bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		bookings: params.Bookings,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		tx:       params.TransactionRunner,
		frontend: params.Frontend,
		payments: params.Payments,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) Create(ctx context.Context, bookingID uuid.UUID, structure enums.PaymentStructure) (*CreateResult, error) {
	if !structure.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment structure")
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusPending {
		return nil, pkgerrors.InvalidState(fmt.Sprintf("Booking is %s and cannot take a new payment", booking.Status))
	}
	if !booking.TotalAmount.IsPositive() {
		return nil, pkgerrors.InvalidState("Booking total amount must be positive")
	}
	if booking.PaymentIntentID != nil {
		existing, err := s.repo.FindByID(ctx, *booking.PaymentIntentID)
		if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		if existing != nil && existing.Status == enums.PaymentIntentStatusCreated && !existing.PrimaryExpired(s.now()) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "Booking already has an active payment link")
		}
	}

	amount, remaining := s.splitAmounts(booking.TotalAmount, structure)
	now := s.now()
	intent := &models.PaymentIntent{
		ID:               uuid.New(),
		BookingID:        booking.ID,
		Status:           enums.PaymentIntentStatusCreated,
		PaymentStructure: structure,
		Amount:           amount,
		RemainingAmount:  remaining,
		Currency:         booking.Currency,
		ExpiresAt:        now.Add(s.payments.PrimaryLinkTTL()),
		CustomerData:     customerSnapshot(booking),
		Version:          1,
	}
	ctx = s.logContext(ctx, intent)

	metadata := map[string]string{
		stripe.MetadataPaymentIntentID: intent.ID.String(),
		stripe.MetadataBookingID:       booking.ID.String(),
	}
	productID, err := s.gateway.CreateProduct(ctx, stripe.ProductInput{
		Name:     fmt.Sprintf("%s booking %s", booking.VenueName, booking.EventDate.Format("2006-01-02")),
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}
	priceID, err := s.gateway.CreatePrice(ctx, stripe.PriceInput{
		ProductID: productID,
		Amount:    amount,
		Currency:  intent.Currency.Gateway(),
	})
	if err != nil {
		return nil, err
	}
	link, err := s.gateway.CreatePaymentLink(ctx, stripe.PaymentLinkInput{
		PriceID:     priceID,
		RedirectURL: s.statusURL(intent.ID),
		Metadata:    withKind(metadata, stripe.PaymentKindPrimary),
	})
	if err != nil {
		return nil, err
	}
	intent.StripeProductID = &productID
	intent.StripePaymentLinkID = &link.ID

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, intent); err != nil {
			return err
		}
		return s.bookings.WithTx(tx).AttachPaymentIntent(ctx, booking.ID, intent.ID)
	})
	if err != nil {
		s.deactivate(ctx, link.ID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment intent")
	}
	s.metrics.IncLinkCreated(string(stripe.PaymentKindPrimary))

	s.notifier.SendAsync(ctx, recipient(intent.CustomerData), emails.TemplatePaymentLink, emails.Data{
		CustomerName: intent.CustomerData.Name,
		VenueName:    booking.VenueName,
		Amount:       amount,
		Currency:     string(intent.Currency),
		PaymentURL:   s.statusURL(intent.ID),
		EventDate:    booking.EventDate,
		ExpiresAt:    intent.ExpiresAt,
	})

	return &CreateResult{PaymentIntent: intent, PaymentURL: link.URL}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) CheckStatus(ctx context.Context, id uuid.UUID) (string, error) {
	intent, err := s.findForStatusCheck(ctx, id)
	if err != nil {
		return "", err
	}
	ctx = s.logContext(ctx, intent)

	if intent.Status.IsTerminal() {
		return "", pkgerrors.InvalidState(terminalMessage(intent.Status))
	}
	if intent.PrimaryExpired(s.now()) {
		if err := s.expirePrimary(ctx, intent); err != nil {
			return "", err
		}
		return "", pkgerrors.InvalidState(msgLinkExpired)
	}
	if intent.StripePaymentLinkID == nil {
		return "", pkgerrors.InvalidState("Payment link is not available")
	}
	return s.gateway.GetPaymentLinkURL(ctx, *intent.StripePaymentLinkID)
}

func (s *service) CreateSecondPayment(ctx context.Context, id uuid.UUID, expiresInHours *int) (*SecondPaymentResult, error) {
	hours := s.payments.SecondLinkExpiryHours
	if expiresInHours != nil {
		hours = *expiresInHours
	}
	if hours <= 0 || hours > maxSecondExpiryHours {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("expiresInHours must be between 1 and %d", maxSecondExpiryHours))
	}

	intent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logContext(ctx, intent)

	if intent.PaymentStructure != enums.PaymentStructureSplit {
		return nil, pkgerrors.InvalidState("Second payment is only available for split payments")
	}
	if !intent.RemainingAmount.IsPositive() {
		return nil, pkgerrors.InvalidState("There is no remaining amount to collect")
	}
	if intent.Status == enums.PaymentIntentStatusCancelled || intent.Status == enums.PaymentIntentStatusRefunded {
		return nil, pkgerrors.InvalidState(terminalMessage(intent.Status))
	}

	now := s.now()
	if intent.HasOpenSecondPayment(now) {
		return nil, pkgerrors.InvalidState("An active second payment link already exists")
	}
	if intent.SecondPaymentStatus != nil && *intent.SecondPaymentStatus == enums.PaymentIntentStatusCreated {
		// the open link ran past its expiry; close it so the conditional write below can win
		if err := s.expireSecond(ctx, intent); err != nil {
			return nil, err
		}
		if intent, err = s.repo.FindByID(ctx, id); err != nil {
			return nil, err
		}
	}

	metadata := map[string]string{
		stripe.MetadataPaymentIntentID: intent.ID.String(),
		stripe.MetadataBookingID:       intent.BookingID.String(),
	}
	var createdProduct *string
	productID := ""
	if intent.StripeProductID != nil {
		productID = *intent.StripeProductID
	} else {
		productID, err = s.gateway.CreateProduct(ctx, stripe.ProductInput{
			Name:     fmt.Sprintf("Booking %s remaining balance", intent.BookingID),
			Metadata: metadata,
		})
		if err != nil {
			return nil, err
		}
		createdProduct = &productID
	}
	priceID, err := s.gateway.CreatePrice(ctx, stripe.PriceInput{
		ProductID: productID,
		Amount:    intent.RemainingAmount,
		Currency:  intent.Currency.Gateway(),
	})
	if err != nil {
		return nil, err
	}
	link, err := s.gateway.CreatePaymentLink(ctx, stripe.PaymentLinkInput{
		PriceID:     priceID,
		RedirectURL: s.secondStatusURL(intent.ID),
		Metadata:    withKind(metadata, stripe.PaymentKindSecond),
	})
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(time.Duration(hours) * time.Hour)
	won, err := s.repo.AttachSecondPayment(ctx, intent.ID, intent.Version, SecondLink{
		LinkID:    link.ID,
		ProductID: createdProduct,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		s.deactivate(ctx, link.ID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist second payment link")
	}
	if !won {
		s.deactivate(ctx, link.ID)
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "Second payment link was created by a concurrent request")
	}
	s.metrics.IncLinkCreated(string(stripe.PaymentKindSecond))

	s.notifier.SendAsync(ctx, recipient(intent.CustomerData), emails.TemplateSecondPaymentLink, emails.Data{
		CustomerName: intent.CustomerData.Name,
		VenueName:    s.venueName(ctx, intent.BookingID),
		Amount:       intent.RemainingAmount,
		Currency:     string(intent.Currency),
		PaymentURL:   s.secondStatusURL(intent.ID),
		ExpiresAt:    expiresAt,
	})

	return &SecondPaymentResult{
		PaymentLinkID: link.ID,
		PaymentURL:    link.URL,
		ExpiresAt:     expiresAt,
		Status:        enums.PaymentIntentStatusCreated,
	}, nil
}

func (s *service) CheckSecondPaymentStatus(ctx context.Context, id uuid.UUID) (string, error) {
	intent, err := s.findForStatusCheck(ctx, id)
	if err != nil {
		return "", err
	}
	ctx = s.logContext(ctx, intent)

	if intent.SecondPaymentLinkID == nil || intent.SecondPaymentStatus == nil {
		return "", pkgerrors.InvalidState("No second payment link exists for this payment")
	}
	status := *intent.SecondPaymentStatus
	if status.IsTerminal() {
		return "", pkgerrors.InvalidState(terminalMessage(status))
	}
	if intent.SecondPaymentExpiresAt == nil || !intent.SecondPaymentExpiresAt.After(s.now()) {
		if err := s.expireSecond(ctx, intent); err != nil {
			return "", err
		}
		return "", pkgerrors.InvalidState(msgLinkExpired)
	}
	return s.gateway.GetPaymentLinkURL(ctx, *intent.SecondPaymentLinkID)
}

func (s *service) SendReminder(ctx context.Context, id uuid.UUID) error {
	intent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	ctx = s.logContext(ctx, intent)

	if !intent.CustomerData.HasEmail() {
		return pkgerrors.InvalidState("Customer email is missing for this payment")
	}

	now := s.now()
	data := emails.Data{
		CustomerName: intent.CustomerData.Name,
		Currency:     string(intent.Currency),
	}
	switch {
	case intent.HasOpenSecondPayment(now):
		data.Amount = intent.RemainingAmount
		data.PaymentURL = s.secondStatusURL(intent.ID)
		data.ExpiresAt = *intent.SecondPaymentExpiresAt
	case intent.Status == enums.PaymentIntentStatusCreated && !intent.PrimaryExpired(now):
		data.Amount = intent.Amount
		data.PaymentURL = s.statusURL(intent.ID)
		data.ExpiresAt = intent.ExpiresAt
	default:
		return pkgerrors.InvalidState("There is no open payment link to remind the customer about")
	}

	if booking, err := s.bookings.FindByID(ctx, intent.BookingID); err == nil {
		data.VenueName = booking.VenueName
		data.EventDate = booking.EventDate
	}

	if err := s.notifier.Send(ctx, recipient(intent.CustomerData), emails.TemplatePaymentReminder, data); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(ctx, "payment reminder sent")
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logContext(ctx, intent)

	next, err := lifecycle.NextIntentStatus(ctx, intent.Status, lifecycle.TriggerCancel)
	if err != nil {
		return nil, pkgerrors.InvalidState(fmt.Sprintf("Payment intent in status %s cannot be cancelled", intent.Status))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		won, err := txRepo.TransitionStatus(ctx, intent.ID, intent.Status, next, nil)
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeConflict, "Payment intent changed while cancelling")
		}
		if intent.SecondPaymentStatus != nil && *intent.SecondPaymentStatus == enums.PaymentIntentStatusCreated {
			if _, err := txRepo.TransitionSecondStatus(ctx, intent.ID, enums.PaymentIntentStatusCreated, enums.PaymentIntentStatusCancelled, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if intent.StripePaymentLinkID != nil {
		s.deactivate(ctx, *intent.StripePaymentLinkID)
	}
	if intent.SecondPaymentLinkID != nil {
		s.deactivate(ctx, *intent.SecondPaymentLinkID)
	}
	return s.repo.FindByID(ctx, id)
}

func (s *service) ExpireStale(ctx context.Context, now time.Time) (*ExpiryResult, error) {
	primary, second, err := s.repo.ExpireStale(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire stale payment intents")
	}
	return &ExpiryResult{Primary: primary, Second: second}, nil
}

// findForStatusCheck maps an unknown id onto the 400 the redirect routes answer with.
func (s *service) findForStatusCheck(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := s.repo.FindByID(ctx, id)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return nil, pkgerrors.InvalidState("Payment intent not found")
	}
	return intent, err
}

func (s *service) expirePrimary(ctx context.Context, intent *models.PaymentIntent) error {
	next, err := lifecycle.NextIntentStatus(ctx, intent.Status, lifecycle.TriggerExpire)
	if err != nil {
		return pkgerrors.InvalidState(terminalMessage(intent.Status))
	}
	won, err := s.repo.TransitionStatus(ctx, intent.ID, intent.Status, next, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire payment intent")
	}
	if won && s.logg != nil {
		s.logg.Info(ctx, "payment intent expired")
	}
	return nil
}

func (s *service) expireSecond(ctx context.Context, intent *models.PaymentIntent) error {
	won, err := s.repo.TransitionSecondStatus(ctx, intent.ID, enums.PaymentIntentStatusCreated, enums.PaymentIntentStatusExpired, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire second payment")
	}
	if won && s.logg != nil {
		s.logg.Info(ctx, "second payment expired")
	}
	return nil
}

func (s *service) deactivate(ctx context.Context, linkID string) {
	if err := s.gateway.DeactivatePaymentLink(ctx, linkID); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "payment_link_id", linkID), "deactivate payment link", err)
	}
}

func (s *service) splitAmounts(total decimal.Decimal, structure enums.PaymentStructure) (decimal.Decimal, decimal.Decimal) {
	if structure != enums.PaymentStructureSplit {
		return total, decimal.Zero
	}
	pct := s.payments.SplitDepositPercent
	if pct <= 0 || pct >= 100 {
		pct = 50
	}
	deposit := total.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100)).Round(2)
	return deposit, total.Sub(deposit)
}

func (s *service) venueName(ctx context.Context, bookingID uuid.UUID) string {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return ""
	}
	return booking.VenueName
}

func (s *service) statusURL(id uuid.UUID) string {
	return s.frontend.APIURL(fmt.Sprintf("/api/v1/payment-intent/%s/check-status", id))
}

func (s *service) secondStatusURL(id uuid.UUID) string {
	return s.frontend.APIURL(fmt.Sprintf("/api/v1/payment-intent/%s/check-second-payment-status", id))
}

func (s *service) logContext(ctx context.Context, intent *models.PaymentIntent) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithPaymentIntentID(ctx, intent.ID.String())
	return s.logg.WithBookingID(ctx, intent.BookingID.String())
}

func terminalMessage(status enums.PaymentIntentStatus) string {
	switch status {
	case enums.PaymentIntentStatusExpired:
		return msgLinkExpired
	case enums.PaymentIntentStatusSucceeded:
		return "Payment has already been completed"
	case enums.PaymentIntentStatusRefunded:
		return "Payment has been refunded"
	case enums.PaymentIntentStatusCancelled:
		return "Payment has been cancelled"
	default:
		return fmt.Sprintf("Payment is %s", status)
	}
}

func customerSnapshot(booking *models.Booking) types.CustomerData {
	data := types.CustomerData{Name: booking.CustomerName, Email: booking.CustomerEmail}
	if booking.CustomerPhone != nil {
		data.Phone = *booking.CustomerPhone
	}
	return data
}

func recipient(data types.CustomerData) emails.Recipient {
	return emails.Recipient{Email: data.Email, Name: data.Name}
}

func withKind(metadata map[string]string, kind stripe.PaymentKind) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[stripe.MetadataPaymentKind] = string(kind)
	return out
}
