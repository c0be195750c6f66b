package stripe

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/paymentlink"
	"github.com/stripe/stripe-go/v84/price"
	"github.com/stripe/stripe-go/v84/product"
	"github.com/stripe/stripe-go/v84/refund"

	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
)

// Metadata keys stamped on every gateway object so webhooks can be routed back.
const (
	MetadataPaymentIntentID = "payment_intent_id"
	MetadataPaymentKind     = "payment_kind"
	MetadataBookingID       = "booking_id"
	MetadataStageID         = "payment_stage_id"
	MetadataRefundReason    = "refund_reason"
)

// PaymentKind tells settlement which local record a gateway payment belongs to.
type PaymentKind string

const (
	PaymentKindPrimary PaymentKind = "primary"
	PaymentKindSecond  PaymentKind = "second"
	PaymentKindStage   PaymentKind = "stage"
)

// Gateway is the subset of the payment provider the payment workflows use.
type Gateway interface {
	CreateProduct(ctx context.Context, input ProductInput) (string, error)
	CreatePrice(ctx context.Context, input PriceInput) (string, error)
	CreatePaymentLink(ctx context.Context, input PaymentLinkInput) (*PaymentLink, error)
	GetPaymentLinkURL(ctx context.Context, linkID string) (string, error)
	DeactivatePaymentLink(ctx context.Context, linkID string) error
	CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, input RefundInput) (*Refund, error)
}

type ProductInput struct {
	Name     string
	Metadata map[string]string
}

type PriceInput struct {
	ProductID string
	Amount    decimal.Decimal
	Currency  string
}

// PaymentLinkInput describes a single-use payment link.
type PaymentLinkInput struct {
	PriceID     string
	RedirectURL string
	Metadata    map[string]string
}

type PaymentLink struct {
	ID  string
	URL string
}

// CheckoutSessionInput describes a one-off checkout for an ad-hoc amount.
type CheckoutSessionInput struct {
	Name          string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}

type RefundInput struct {
	PaymentIntentID string
	Amount          decimal.Decimal
	Metadata        map[string]string
}

type Refund struct {
	ID     string
	Amount decimal.Decimal
	Status string
}

// gateway talks to Stripe through the package-level resource clients; the key
// is installed by NewClient.
type gateway struct {
	client *Client
}

// NewGateway returns the Stripe-backed Gateway.
func NewGateway(client *Client) (Gateway, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &gateway{client: client}, nil
}

func (g *gateway) CreateProduct(ctx context.Context, input ProductInput) (string, error) {
	params := &stripe.ProductParams{Name: stripe.String(input.Name)}
	params.Context = ctx
	addMetadata(&params.Params, input.Metadata)

	prod, err := product.New(params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe product")
	}
	return prod.ID, nil
}

func (g *gateway) CreatePrice(ctx context.Context, input PriceInput) (string, error) {
	if !input.Amount.IsPositive() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "price amount must be positive")
	}
	params := &stripe.PriceParams{
		Product:    stripe.String(input.ProductID),
		Currency:   stripe.String(normalizeCurrency(input.Currency)),
		UnitAmount: stripe.Int64(ToMinorUnits(input.Amount)),
	}
	params.Context = ctx

	p, err := price.New(params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe price")
	}
	return p.ID, nil
}

func (g *gateway) CreatePaymentLink(ctx context.Context, input PaymentLinkInput) (*PaymentLink, error) {
	link, err := paymentlink.New(paymentLinkParams(ctx, input))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe payment link")
	}
	return &PaymentLink{ID: link.ID, URL: link.URL}, nil
}

func (g *gateway) GetPaymentLinkURL(ctx context.Context, linkID string) (string, error) {
	params := &stripe.PaymentLinkParams{}
	params.Context = ctx

	link, err := paymentlink.Get(linkID, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve stripe payment link")
	}
	if !link.Active {
		return "", pkgerrors.InvalidState("Payment link is no longer active")
	}
	return link.URL, nil
}

func (g *gateway) DeactivatePaymentLink(ctx context.Context, linkID string) error {
	params := &stripe.PaymentLinkParams{Active: stripe.Bool(false)}
	params.Context = ctx

	if _, err := paymentlink.Update(linkID, params); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate stripe payment link")
	}
	return nil
}

func (g *gateway) CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSession, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout amount must be positive")
	}
	sess, err := session.New(checkoutSessionParams(ctx, input))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe checkout session")
	}
	out := &CheckoutSession{ID: sess.ID, URL: sess.URL}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	return out, nil
}

func (g *gateway) CreateRefund(ctx context.Context, input RefundInput) (*Refund, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(input.PaymentIntentID),
		Amount:        stripe.Int64(ToMinorUnits(input.Amount)),
	}
	params.Context = ctx
	addMetadata(&params.Params, input.Metadata)

	r, err := refund.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe refund")
	}
	return &Refund{
		ID:     r.ID,
		Amount: FromMinorUnits(r.Amount),
		Status: string(r.Status),
	}, nil
}

func paymentLinkParams(ctx context.Context, input PaymentLinkInput) *stripe.PaymentLinkParams {
	params := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{
				Price:    stripe.String(input.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Restrictions: &stripe.PaymentLinkRestrictionsParams{
			CompletedSessions: &stripe.PaymentLinkRestrictionsCompletedSessionsParams{
				Limit: stripe.Int64(1),
			},
		},
	}
	if input.RedirectURL != "" {
		params.AfterCompletion = &stripe.PaymentLinkAfterCompletionParams{
			Type: stripe.String(string(stripe.PaymentLinkAfterCompletionTypeRedirect)),
			Redirect: &stripe.PaymentLinkAfterCompletionRedirectParams{
				URL: stripe.String(input.RedirectURL),
			},
		}
	}
	if len(input.Metadata) > 0 {
		params.PaymentIntentData = &stripe.PaymentLinkPaymentIntentDataParams{
			Metadata: copyMetadata(input.Metadata),
		}
	}
	params.Context = ctx
	addMetadata(&params.Params, input.Metadata)
	return params
}

func checkoutSessionParams(ctx context.Context, input CheckoutSessionInput) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(normalizeCurrency(input.Currency)),
					UnitAmount: stripe.Int64(ToMinorUnits(input.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(input.Name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(input.SuccessURL),
		CancelURL:  stripe.String(input.CancelURL),
	}
	if input.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(input.CustomerEmail)
	}
	if len(input.Metadata) > 0 {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(input.Metadata),
		}
	}
	params.Context = ctx
	addMetadata(&params.Params, input.Metadata)
	return params
}

func addMetadata(params *stripe.Params, metadata map[string]string) {
	for key, value := range metadata {
		if value == "" {
			continue
		}
		params.AddMetadata(key, value)
	}
}

func copyMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		if value != "" {
			out[key] = value
		}
	}
	return out
}

func normalizeCurrency(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return string(stripe.CurrencyUSD)
	}
	return code
}
