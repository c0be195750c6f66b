package paymentintents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	intentsvc "github.com/angelmondragon/venuepay-backend/internal/paymentintents"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/types"
)

type stubService struct {
	checkURL   string
	checkErr   error
	secondArgs *int
	secondRes  *intentsvc.SecondPaymentResult
	secondErr  error
	created    enums.PaymentStructure
	reminded   uuid.UUID
}

func (s *stubService) Create(_ context.Context, bookingID uuid.UUID, structure enums.PaymentStructure) (*intentsvc.CreateResult, error) {
	s.created = structure
	return &intentsvc.CreateResult{
		PaymentIntent: &models.PaymentIntent{
			ID:               uuid.New(),
			BookingID:        bookingID,
			Status:           enums.PaymentIntentStatusCreated,
			PaymentStructure: structure,
			Amount:           decimal.RequireFromString("500"),
			RemainingAmount:  decimal.RequireFromString("500"),
			Currency:         enums.CurrencyUSD,
		},
		PaymentURL: "https://buy.stripe.test/plink_1",
	}, nil
}

func (s *stubService) Get(_ context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	return nil, pkgerrors.NotFound("payment intent")
}

func (s *stubService) CheckStatus(context.Context, uuid.UUID) (string, error) {
	return s.checkURL, s.checkErr
}

func (s *stubService) CreateSecondPayment(_ context.Context, _ uuid.UUID, hours *int) (*intentsvc.SecondPaymentResult, error) {
	s.secondArgs = hours
	return s.secondRes, s.secondErr
}

func (s *stubService) CheckSecondPaymentStatus(context.Context, uuid.UUID) (string, error) {
	return s.checkURL, s.checkErr
}

func (s *stubService) SendReminder(_ context.Context, id uuid.UUID) error {
	s.reminded = id
	return nil
}

func (s *stubService) Cancel(context.Context, uuid.UUID) (*models.PaymentIntent, error) {
	return nil, pkgerrors.InvalidState("Payment intent cannot be cancelled")
}

func (s *stubService) ExpireStale(context.Context, time.Time) (*intentsvc.ExpiryResult, error) {
	return &intentsvc.ExpiryResult{}, nil
}

func newRouter(svc intentsvc.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/bookings/{bookingId}/payment-intent", Create(svc, nil))
	r.Get("/payment-intent/{id}", Get(svc, nil))
	r.Get("/payment-intent/{id}/check-status", CheckStatus(svc, nil))
	r.Get("/payment-intent/{id}/check-second-payment-status", CheckSecondPaymentStatus(svc, nil))
	r.Post("/payment-intent/{paymentIntentId}/create-second-payment", CreateSecondPayment(svc, nil))
	r.Post("/payment-intent/{paymentIntentId}/send-reminder", SendReminder(svc, nil))
	r.Post("/payment-intent/{paymentIntentId}/cancel", Cancel(svc, nil))
	return r
}

func TestCheckStatusRedirectsBrowsers(t *testing.T) {
	svc := &stubService{checkURL: "https://buy.stripe.test/plink_1"}
	req := httptest.NewRequest(http.MethodGet, "/payment-intent/"+uuid.NewString()+"/check-status", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != svc.checkURL {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestCheckStatusAnswersJSONClients(t *testing.T) {
	svc := &stubService{checkURL: "https://buy.stripe.test/plink_2"}
	req := httptest.NewRequest(http.MethodGet, "/payment-intent/"+uuid.NewString()+"/check-second-payment-status", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body types.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := body.Data.(map[string]any)
	if data["redirect"] != true || data["url"] != svc.checkURL {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestCheckStatusExpiredIsBadRequest(t *testing.T) {
	svc := &stubService{checkErr: pkgerrors.InvalidState("Payment link is expired")}
	req := httptest.NewRequest(http.MethodGet, "/payment-intent/"+uuid.NewString()+"/check-status", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	var body types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Message != "Payment link is expired" {
		t.Fatalf("unexpected envelope %+v", body)
	}
}

func TestCheckStatusRejectsMalformedID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/payment-intent/nope/check-status", nil)
	rec := httptest.NewRecorder()
	newRouter(&stubService{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCreateSecondPaymentPassesHours(t *testing.T) {
	expires := time.Date(2026, 5, 3, 12, 0, 0, 0, time.UTC)
	svc := &stubService{secondRes: &intentsvc.SecondPaymentResult{
		PaymentLinkID: "plink_2",
		PaymentURL:    "https://buy.stripe.test/plink_2",
		ExpiresAt:     expires,
		Status:        enums.PaymentIntentStatusCreated,
	}}
	req := httptest.NewRequest(http.MethodPost, "/payment-intent/"+uuid.NewString()+"/create-second-payment", strings.NewReader(`{"expiresInHours":24}`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.secondArgs == nil || *svc.secondArgs != 24 {
		t.Fatalf("expected hours 24, got %v", svc.secondArgs)
	}
	var body struct {
		Data intentsvc.SecondPaymentResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.PaymentLinkID != "plink_2" || !body.Data.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected data %+v", body.Data)
	}
}

func TestCreateSecondPaymentDefaultsWithoutBody(t *testing.T) {
	svc := &stubService{secondRes: &intentsvc.SecondPaymentResult{PaymentLinkID: "plink_3"}}
	req := httptest.NewRequest(http.MethodPost, "/payment-intent/"+uuid.NewString()+"/create-second-payment", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.secondArgs != nil {
		t.Fatalf("expected nil hours, got %d", *svc.secondArgs)
	}
}

func TestCreateSecondPaymentConflict(t *testing.T) {
	svc := &stubService{secondErr: pkgerrors.New(pkgerrors.CodeConflict, "a second payment link is already open")}
	req := httptest.NewRequest(http.MethodPost, "/payment-intent/"+uuid.NewString()+"/create-second-payment", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestCreateRejectsUnknownStructure(t *testing.T) {
	svc := &stubService{}
	req := httptest.NewRequest(http.MethodPost, "/bookings/"+uuid.NewString()+"/payment-intent", strings.NewReader(`{"paymentStructure":"THIRDS"}`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/bookings/"+uuid.NewString()+"/payment-intent", strings.NewReader(`{"paymentStructure":"SPLIT_PAYMENT"}`))
	rec = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.created != enums.PaymentStructureSplit {
		t.Fatalf("unexpected structure %s", svc.created)
	}
}

func TestSendReminderAndCancel(t *testing.T) {
	svc := &stubService{}
	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/payment-intent/"+id.String()+"/send-reminder", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || svc.reminded != id {
		t.Fatalf("unexpected reminder result %d %s", rec.Code, svc.reminded)
	}

	req = httptest.NewRequest(http.MethodPost, "/payment-intent/"+id.String()+"/cancel", nil)
	rec = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/payment-intent/"+id.String(), nil)
	rec = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
