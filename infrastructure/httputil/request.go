package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kugelpos/transactional-core/infrastructure/logging"
)

// DecodeJSON decodes the request body into v, writing a validation envelope
// and returning false on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, operation string, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, operation, "request body too large")
			return false
		}
		WriteError(w, http.StatusUnprocessableEntity, operation, "invalid request body")
		return false
	}
	return true
}

// DecodeJSONOptional behaves like DecodeJSON but treats an empty body as success.
func DecodeJSONOptional(w http.ResponseWriter, r *http.Request, operation string, v interface{}) bool {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		return DecodeJSON(w, r, operation, v)
	}
	return true
}

// QueryInt extracts an integer query parameter with a default value.
func QueryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(val); err == nil {
		return n
	}
	return defaultVal
}

// QueryString extracts a string query parameter with a default value.
func QueryString(r *http.Request, key, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// QueryBool extracts a boolean query parameter with a default value.
func QueryBool(r *http.Request, key string, defaultVal bool) bool {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1" || val == "yes"
}

// PaginationParams extracts offset/limit query parameters, clamped to [1, maxLimit].
func PaginationParams(r *http.Request, defaultLimit, maxLimit int) (offset, limit int) {
	offset = QueryInt(r, "offset", 0)
	limit = QueryInt(r, "limit", defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < 1 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}

// PageMetadata is the `metadata` envelope payload for a paginated list response.
type PageMetadata struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// UserID returns the authenticated caller's user id, set on the request
// context by the auth middleware.
func UserID(r *http.Request) string {
	return logging.GetUserID(r.Context())
}

// Role returns the authenticated caller's role, set on the request context
// by the auth middleware.
func Role(r *http.Request) string {
	return logging.GetRole(r.Context())
}

// RequireUserID extracts the authenticated user id, writing a 401 envelope if absent.
func RequireUserID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	userID := UserID(r)
	if userID == "" {
		Unauthorized(w, operation, "authentication required")
		return "", false
	}
	return userID, true
}
