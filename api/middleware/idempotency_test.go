package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

const stagePath = "/api/v1/payment-stages/s1/create-intent"

func stageRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, stagePath, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"booking link", http.MethodPost, "/api/v1/bookings/b1/payment-intent", defaultIdempotencyTTL, true},
		{"second payment", http.MethodPost, "/api/v1/payment-intent/pi1/create-second-payment", defaultIdempotencyTTL, true},
		{"stage intent", http.MethodPost, stagePath, defaultIdempotencyTTL, true},
		{"partial refund", http.MethodPost, "/api/v1/bookings/b1/partial-refund", criticalIdempotencyTTL, true},
		{"service request accept", http.MethodPost, "/api/v1/service-requests/abc/accept", defaultIdempotencyTTL, true},
		{"trailing slash", http.MethodPost, "/api/v1/bookings/b1/partial-refund/", criticalIdempotencyTTL, true},
		{"empty param", http.MethodPost, "/api/v1/bookings//partial-refund", 0, false},
		{"status check", http.MethodGet, "/api/v1/payment-intent/pi1/check-status", 0, false},
		{"webhook", http.MethodPost, "/api/v1/webhooks/stripe", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyPassesThroughWithoutHeader(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, stageRequest("", `{}`))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d", rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	status := http.StatusServiceUnavailable
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	h.ServeHTTP(httptest.NewRecorder(), stageRequest("k1", `{}`))
	if len(store.data) != 0 {
		t.Fatalf("5xx responses must not hold the key")
	}

	status = http.StatusCreated
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, stageRequest("k1", `{}`))
	if rec.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("retry should run the handler again, got %d after %d calls", rec.Code, calls)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"url":"https://buy.stripe.com/test_1"}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, stageRequest("abc", `{"foo":"bar"}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", first.Code)
	}
	if first.Header().Get(replayedHeader) != "" {
		t.Fatalf("first response must not be marked as replay")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, stageRequest("abc", `{"foo":"bar"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" || rec.Header().Get(replayedHeader) != "true" {
		t.Fatalf("unexpected replay headers %v", rec.Header())
	}
	if rec.Body.String() != `{"url":"https://buy.stripe.com/test_1"}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), stageRequest("xyz", `{"foo":"bar"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, stageRequest("xyz", `{"foo":"diff"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	var inner http.Handler
	outer := Idempotency(store, nil)
	inner = outer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	// the first request is still running when the duplicate arrives
	h := outer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dup := httptest.NewRecorder()
		inner.ServeHTTP(dup, stageRequest("dup", `{}`))
		if dup.Code != http.StatusConflict {
			t.Errorf("expected in-flight duplicate to get 409, got %d", dup.Code)
		}
		if code := errorCode(t, dup); code != string(pkgerrors.CodeConflict) {
			t.Errorf("expected %s, got %s", pkgerrors.CodeConflict, code)
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, stageRequest("dup", `{}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected original request to finish with 201, got %d", rec.Code)
	}
}
