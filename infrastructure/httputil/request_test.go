package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSONRejectsInvalidBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))

	var v struct{}
	if DecodeJSON(rec, req, "op", &v) {
		t.Fatal("expected DecodeJSON to fail")
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestDecodeJSONOptionalAllowsEmptyBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)

	var v struct{}
	if !DecodeJSONOptional(rec, req, "op", &v) {
		t.Fatal("expected DecodeJSONOptional to succeed on empty body")
	}
}

func TestPaginationParamsClampsToMax(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?offset=5&limit=500", nil)
	offset, limit := PaginationParams(req, 20, 100)
	if offset != 5 || limit != 100 {
		t.Fatalf("PaginationParams() = (%d, %d), want (5, 100)", offset, limit)
	}
}

func TestPaginationParamsDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	offset, limit := PaginationParams(req, 20, 100)
	if offset != 0 || limit != 20 {
		t.Fatalf("PaginationParams() = (%d, %d), want (0, 20)", offset, limit)
	}
}

func TestRequireUserIDWritesUnauthorizedWhenAbsent(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, ok := RequireUserID(rec, req, "op"); ok {
		t.Fatal("expected RequireUserID to fail without context user")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
