package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kugelpos/transactional-core/infrastructure/errors"
)

func TestWriteEnvelopeSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteEnvelope(rec, "cart.create", map[string]string{"cart_id": "c1"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !env.Success || env.Operation != "cart.create" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestWriteErrorEnvelopeUsesServiceErrorStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/carts", nil)

	WriteErrorEnvelope(rec, req, "cart.bill", errors.BalanceGreaterThanZero())

	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", rec.Code)
	}
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Success {
		t.Fatal("expected success=false")
	}
	if env.Message != "balance must be zero to bill" {
		t.Fatalf("message = %q", env.Message)
	}
}

func TestWriteErrorEnvelopeFallsBackToUnexpected(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/carts", nil)

	WriteErrorEnvelope(rec, req, "cart.bill", errOpaque{})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

type errOpaque struct{}

func (errOpaque) Error() string { return "boom" }
