// Package middleware provides the shared net/http middleware used by every
// cmd/* binary: panic recovery, request logging, CORS, per-key rate
// limiting, and bearer/service-JWT authentication.
package middleware

import (
	"net/http"
	"time"

	"github.com/kugelpos/transactional-core/infrastructure/httputil"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
)

// Recover turns a panicking handler into a 500 envelope instead of
// crashing the process — every outbound call carries its own deadline
//, but a handler bug should not take the whole worker down.
func Recover(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithContext(r.Context()).WithField("panic", rec).Error("handler panicked")
					httputil.WriteError(w, http.StatusInternalServerError, "unknown", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLog logs method/path/status/duration for every request, tagging
// it with a trace id so cross-service calls can be correlated.
func RequestLog(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			traceID := r.Header.Get("X-Trace-Id")
			if traceID == "" {
				traceID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			w.Header().Set("X-Trace-Id", traceID)
			next.ServeHTTP(sw, r.WithContext(ctx))
			logger.WithContext(ctx).WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", sw.status).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Info("request handled")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// CORS allows any origin with the standard verb/header set, the transport
// posture this core's HTTP layer is defined to be agnostic about.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key,X-Trace-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
