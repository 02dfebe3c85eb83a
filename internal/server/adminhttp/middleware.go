// Package adminhttp provides the admin HTTP endpoint for EntMesh.
package adminhttp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/entmesh-go/internal/telemetry/logger"
)

// Context keys for request-scoped values.
type contextKey string

const (
	// ContextKeyRequestID is the context key for request ID.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyStartTime is the context key for request start time.
	ContextKeyStartTime contextKey = "start_time"
)

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID adds a unique request ID to each request.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check for existing request ID in header
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = "req-" + ulid.Make().String()
			}

			// Add to response header
			w.Header().Set("X-Request-ID", requestID)

			// Add to request context
			ctx := context.WithValue(r.Context(), ContextKeyRequestID, requestID)
			ctx = context.WithValue(ctx, ContextKeyStartTime, time.Now())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog logs completed requests.
func AccessLog(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			requestID, _ := r.Context().Value(ContextKeyRequestID).(string)
			startTime, _ := r.Context().Value(ContextKeyStartTime).(time.Time)
			duration := time.Since(startTime)

			attrs := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", duration.Milliseconds(),
				"client_ip", getClientIP(r),
			}

			if wrapped.statusCode >= 500 {
				log.Error("request completed with error", attrs...)
			} else if wrapped.statusCode >= 400 {
				log.Warn("request completed with client error", attrs...)
			} else {
				log.Info("request completed", attrs...)
			}
		})
	}
}

// Recover recovers from panics and returns 500 error.
func Recover(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID, _ := r.Context().Value(ContextKeyRequestID).(string)
					log.Error("panic recovered",
						"request_id", requestID,
						"error", err,
						"path", r.URL.Path,
					)

					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("X-Error-Code", "EM-SYS-5000")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"code":    "EM-SYS-5000",
						"message": "internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// GetRequestIDFromContext retrieves the request ID from context.
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	// Use net.SplitHostPort to correctly handle IPv6 addresses like [::1]:8080
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If SplitHostPort fails, return as-is (might be just an IP without port)
		return r.RemoteAddr
	}
	return host
}
