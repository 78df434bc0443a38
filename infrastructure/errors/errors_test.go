package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestNewCarriesCodeAndStatus(t *testing.T) {
	err := BalanceMinus()
	if err.Code != ErrCodeBalanceMinus {
		t.Fatalf("Code = %v, want %v", err.Code, ErrCodeBalanceMinus)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("db down")
	se := ExternalService("terminal", cause)
	if !errors.Is(se, cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}
}

func TestWithDetails(t *testing.T) {
	se := NotFound("cart", "abc-123").WithDetails("extra", "info")
	if se.Details["resource"] != "cart" || se.Details["id"] != "abc-123" || se.Details["extra"] != "info" {
		t.Fatalf("unexpected details: %#v", se.Details)
	}
}

func TestGetHTTPStatusFallsBackTo500(t *testing.T) {
	if GetHTTPStatus(errors.New("plain")) != http.StatusInternalServerError {
		t.Fatal("expected 500 for a non-ServiceError")
	}
}

func TestIsServiceError(t *testing.T) {
	if !IsServiceError(Validation("bad")) {
		t.Fatal("expected Validation() to be a ServiceError")
	}
	if IsServiceError(errors.New("plain")) {
		t.Fatal("plain error should not report as ServiceError")
	}
}

func TestWithUserMessageOverridesLocalisedText(t *testing.T) {
	se := TerminalNotSignedIn().WithUserMessage("please sign in first")
	if se.UserError.Message != "please sign in first" {
		t.Fatalf("UserError.Message = %q", se.UserError.Message)
	}
	if se.UserError.Code != ErrCodeTerminalNotSignedIn {
		t.Fatalf("UserError.Code = %q", se.UserError.Code)
	}
}
