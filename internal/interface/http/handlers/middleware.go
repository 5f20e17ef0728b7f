package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beanwise/learning-engine/pkg/logger"
)

// MiddlewareFunc wraps a handler.
type MiddlewareFunc func(http.Handler) http.Handler

// ChainHandler applies middlewares to h. The first one runs outermost.
func ChainHandler(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range slices.Backward(middlewares) {
		h = mw(h)
	}
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN KEYS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultAPIKeyHeader carries the admin key. "Authorization: Bearer" works too.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKeyAuth guards the admin routes with a fixed set of keys.
type APIKeyAuth struct {
	header string
	keys   [][]byte
}

// NewAPIKeyAuth ignores blank keys.
func NewAPIKeyAuth(header string, keys []string) *APIKeyAuth {
	a := &APIKeyAuth{header: header}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

// IsValid compares key against every stored key in constant time.
func (a *APIKeyAuth) IsValid(key string) bool {
	match := 0
	for _, k := range a.keys {
		match |= subtle.ConstantTimeCompare(k, []byte(key))
	}
	return key != "" && match == 1
}

func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(a.header)
		if key == "" {
			key, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		switch {
		case key == "":
			writeError(w, http.StatusUnauthorized, "missing_api_key", "API key is required")
		case !a.IsValid(key):
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SCOPE
// ══════════════════════════════════════════════════════════════════════════════

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// RequestID puts a request-scoped logger into the context. A missing
// X-Request-ID gets a fresh UUID.
func RequestID(log *logger.Logger) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			ctx := logger.WithContext(r.Context(), log.WithRequestID(id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLog logs one line per request. Paths in quiet go to debug.
func AccessLog(quiet ...string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log := logger.FromContext(r.Context())
			fields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", rec.status),
				logger.Latency(time.Since(start)),
			}
			if slices.Contains(quiet, r.URL.Path) {
				log.Debug("http request", fields...)
				return
			}
			log.Info("http request", fields...)
		})
	}
}

// Recover turns a handler panic into a 500.
func Recover(log *logger.Logger) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					log.Error("panic recovered",
						logger.Any("panic", v),
						logger.String("stack", string(debug.Stack())),
						logger.String("path", r.URL.Path),
					)
					writeError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// TimeoutMiddleware bounds request contexts. Zero disables it.
func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError emits the error envelope used by the API.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    false,
		"error":      map[string]string{"code": code, "message": message},
		"request_id": w.Header().Get(RequestIDHeader),
		"timestamp":  time.Now().UTC(),
	})
}
