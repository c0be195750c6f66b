package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v84"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeInvalidState, status: http.StatusBadRequest, publicMsg: "operation not allowed in the current state"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "idempotency key reused", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
	if IsClientCode("SOMETHING_UNKNOWN") {
		t.Fatal("unknown codes must not expose their message")
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}

	if got := NotFound("payment intent"); got.Message() != "payment intent not found" || got.Code() != CodeNotFound {
		t.Fatalf("unexpected not found error %v", got)
	}
	if got := InvalidState("Payment link is expired"); got.Code() != CodeInvalidState {
		t.Fatalf("unexpected invalid state code %s", got.Code())
	}
}

func TestAsAndHasCodeFollowWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", InvalidState("nope"))
	if got := As(err); got == nil || got.Code() != CodeInvalidState {
		t.Fatalf("As failed to return typed error")
	}
	if !HasCode(err, CodeInvalidState) {
		t.Fatal("expected HasCode to match wrapped error")
	}
	if HasCode(stdErrors.New("plain"), CodeInvalidState) {
		t.Fatal("plain errors carry no code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCapturesStripeErrors(t *testing.T) {
	stripeErr := &stripe.Error{
		Type:           stripe.ErrorTypeInvalidRequest,
		Code:           stripe.ErrorCodeResourceMissing,
		RequestID:      "req_123",
		HTTPStatusCode: http.StatusNotFound,
	}
	err := Wrap(CodeDependency, stripeErr, "create refund")

	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", dump.Code)
	}
	if dump.StripeRequestID != "req_123" || dump.StripeStatus != http.StatusNotFound {
		t.Fatalf("stripe fields not captured: %+v", dump)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(dump.Chain))
	}

	fields := dump.Fields()
	if fields["stripe_request_id"] != "req_123" {
		t.Fatalf("expected stripe request id field, got %v", fields)
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatal("empty pg fields must be omitted")
	}
}
