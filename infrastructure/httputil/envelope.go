// Package httputil provides the shared response envelope and request
// helpers every HTTP handler in the transactional core uses.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
)

// Envelope is the uniform response shape every handler replies with:
// {success, code, message, data, metadata?, operation}.
type Envelope struct {
	Success   bool        `json:"success"`
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Metadata  interface{} `json:"metadata,omitempty"`
	Operation string      `json:"operation,omitempty"`
}

var defaultLogger = logging.NewFromEnv("httputil")

// WriteEnvelope writes a successful response with status 200 and the given
// operation name, unless status is provided explicitly via WriteEnvelopeStatus.
func WriteEnvelope(w http.ResponseWriter, operation string, data, metadata interface{}) {
	WriteEnvelopeStatus(w, http.StatusOK, operation, data, metadata)
}

// WriteEnvelopeStatus writes a successful response with an explicit HTTP status.
func WriteEnvelopeStatus(w http.ResponseWriter, status int, operation string, data, metadata interface{}) {
	writeJSON(w, status, Envelope{
		Success:   true,
		Code:      status,
		Message:   "success",
		Data:      data,
		Metadata:  metadata,
		Operation: operation,
	})
}

// WriteErrorEnvelope renders err as the envelope's error shape. ServiceError
// values (infrastructure/errors) drive the HTTP status and user-facing
// message; any other error is treated as an unexpected internal failure.
func WriteErrorEnvelope(w http.ResponseWriter, r *http.Request, operation string, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Unexpected(err)
	}

	if r != nil {
		defaultLogger.WithContext(r.Context()).WithError(svcErr).
			WithField("operation", operation).
			WithField("error_code", string(svcErr.Code)).
			Warn("request failed")
	}

	writeJSON(w, svcErr.HTTPStatus, Envelope{
		Success:   false,
		Code:      svcErr.HTTPStatus,
		Message:   svcErr.UserError.Message,
		Data:      svcErr.Details,
		Operation: operation,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		defaultLogger.WithError(err).Warn("write json response")
	}
}

// WriteError writes a bare error envelope for handler paths that have not
// yet been routed through infrastructure/errors (e.g. 404 for unknown routes).
func WriteError(w http.ResponseWriter, status int, operation, message string) {
	writeJSON(w, status, Envelope{
		Success:   false,
		Code:      status,
		Message:   message,
		Operation: operation,
	})
}

// NotFound writes a 404 envelope.
func NotFound(w http.ResponseWriter, operation, message string) {
	if message == "" {
		message = "not found"
	}
	WriteError(w, http.StatusNotFound, operation, message)
}

// Unauthorized writes a 401 envelope.
func Unauthorized(w http.ResponseWriter, operation, message string) {
	if message == "" {
		message = "unauthorized"
	}
	WriteError(w, http.StatusUnauthorized, operation, message)
}

// WrapError annotates err with a message, preserving Unwrap().
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
