// Package settlement applies asynchronous gateway outcomes (payments,
// refunds, expiries) to local payment records.
package settlement

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	gateway "github.com/angelmondragon/venuepay-backend/pkg/stripe"
)

// Kind is the settlement outcome reported by the gateway.
type Kind string

const (
	KindPaymentSucceeded Kind = "PaymentSucceeded"
	KindPaymentRefunded  Kind = "PaymentRefunded"
	KindPaymentExpired   Kind = "PaymentExpired"
)

// Event is an inbound settlement signal. ReferenceID is the local payment
// intent id (primary and second payments) or payment stage id (stages). When
// it is empty the payment intent is resolved by GatewayPaymentIntentID.
type Event struct {
	ID                     string
	Kind                   Kind
	ReferenceID            string
	PaymentKind            gateway.PaymentKind
	GatewayPaymentIntentID string
	GatewaySessionID       string
	RefundID               string
	OccurredAt             time.Time
}

// FromStripeEvent maps a verified Stripe event onto a settlement event. It
// returns nil when the event carries nothing to settle.
func FromStripeEvent(event *stripe.Event) (*Event, error) {
	if event == nil || event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	occurred := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		// delayed payment methods complete the session before funds arrive
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return nil, nil
		}
		ev := fromMetadata(event.ID, KindPaymentSucceeded, session.Metadata, occurred)
		if ev == nil {
			return nil, nil
		}
		ev.GatewaySessionID = session.ID
		if session.PaymentIntent != nil {
			ev.GatewayPaymentIntentID = session.PaymentIntent.ID
		}
		return ev, nil

	case stripe.EventTypeCheckoutSessionExpired:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		ev := fromMetadata(event.ID, KindPaymentExpired, session.Metadata, occurred)
		// payment link sessions expire routinely while the link stays usable
		if ev == nil || ev.PaymentKind != gateway.PaymentKindStage {
			return nil, nil
		}
		ev.GatewaySessionID = session.ID
		return ev, nil

	case stripe.EventTypePaymentLinkUpdated:
		var link stripe.PaymentLink
		if err := json.Unmarshal(event.Data.Raw, &link); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment link")
		}
		if link.Active {
			return nil, nil
		}
		return fromMetadata(event.ID, KindPaymentExpired, link.Metadata, occurred), nil

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
		}
		if !charge.Refunded || charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			return nil, nil
		}
		ev := &Event{
			ID:                     event.ID,
			Kind:                   KindPaymentRefunded,
			ReferenceID:            charge.Metadata[gateway.MetadataPaymentIntentID],
			GatewayPaymentIntentID: charge.PaymentIntent.ID,
			OccurredAt:             occurred,
		}
		if charge.Refunds != nil && len(charge.Refunds.Data) > 0 && charge.Refunds.Data[0] != nil {
			ev.RefundID = charge.Refunds.Data[0].ID
		}
		return ev, nil
	}
	return nil, nil
}

func fromMetadata(eventID string, kind Kind, metadata map[string]string, occurred time.Time) *Event {
	paymentKind := gateway.PaymentKind(metadata[gateway.MetadataPaymentKind])
	var reference string
	switch paymentKind {
	case gateway.PaymentKindPrimary, gateway.PaymentKindSecond:
		reference = metadata[gateway.MetadataPaymentIntentID]
	case gateway.PaymentKindStage:
		reference = metadata[gateway.MetadataStageID]
	default:
		return nil
	}
	if reference == "" {
		return nil
	}
	return &Event{
		ID:          eventID,
		Kind:        kind,
		ReferenceID: reference,
		PaymentKind: paymentKind,
		OccurredAt:  occurred,
	}
}
