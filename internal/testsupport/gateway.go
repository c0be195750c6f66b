package testsupport

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/venuepay-backend/pkg/stripe"
)

// FakeGateway is an in-memory stripe.Gateway that records every call.
type FakeGateway struct {
	mu sync.Mutex

	Products      []stripe.ProductInput
	Prices        []stripe.PriceInput
	Links         []stripe.PaymentLinkInput
	Sessions      []stripe.CheckoutSessionInput
	Refunds       []stripe.RefundInput
	Deactivated   []string
	InactiveLinks map[string]bool

	// Err, when set, is returned by every mutating call.
	Err error
	seq int
}

var _ stripe.Gateway = (*FakeGateway)(nil)

// NewFakeGateway returns an empty fake gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{InactiveLinks: map[string]bool{}}
}

func (g *FakeGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *FakeGateway) CreateProduct(_ context.Context, input stripe.ProductInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	g.Products = append(g.Products, input)
	return g.next("prod"), nil
}

func (g *FakeGateway) CreatePrice(_ context.Context, input stripe.PriceInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	g.Prices = append(g.Prices, input)
	return g.next("price"), nil
}

func (g *FakeGateway) CreatePaymentLink(_ context.Context, input stripe.PaymentLinkInput) (*stripe.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Links = append(g.Links, input)
	id := g.next("plink")
	return &stripe.PaymentLink{ID: id, URL: LinkURL(id)}, nil
}

func (g *FakeGateway) GetPaymentLinkURL(_ context.Context, linkID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.InactiveLinks[linkID] {
		return "", fmt.Errorf("payment link %s is inactive", linkID)
	}
	return LinkURL(linkID), nil
}

func (g *FakeGateway) DeactivatePaymentLink(_ context.Context, linkID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Deactivated = append(g.Deactivated, linkID)
	g.InactiveLinks[linkID] = true
	return nil
}

func (g *FakeGateway) CreateCheckoutSession(_ context.Context, input stripe.CheckoutSessionInput) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Sessions = append(g.Sessions, input)
	id := g.next("cs")
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *FakeGateway) CreateRefund(_ context.Context, input stripe.RefundInput) (*stripe.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Refunds = append(g.Refunds, input)
	return &stripe.Refund{ID: g.next("re"), Amount: input.Amount, Status: "succeeded"}, nil
}

// LinkURL is the URL the fake gateway serves for a payment link id.
func LinkURL(linkID string) string {
	return "https://buy.stripe.test/" + linkID
}
