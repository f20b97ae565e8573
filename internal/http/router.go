// Package httpapi assembles the service's HTTP surface: the compliance
// endpoints plus the operational routes (health, metrics).
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chaintrace/internal/compliance/handler"
	"chaintrace/pkg/platform/httputil"
	"chaintrace/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// HealthCheck probes one downstream dependency.
type HealthCheck func(ctx context.Context) error

// NewRouter wires the compliance handler and operational endpoints behind
// the shared middleware chain. checks maps dependency names to their probes;
// any failing probe turns /healthz into a 503.
func NewRouter(compliance *handler.Handler, logger *slog.Logger, checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(requestLogger(logger))

	compliance.Register(r)

	r.Get("/healthz", handleHealth(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// requestID assigns each request a correlation ID, honoring one supplied by
// the caller, and pins the request time so downstream code shares one clock
// reading.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), id)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				"request_id", requestcontext.RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "up"
		}

		httputil.WriteJSON(w, status, map[string]any{
			"status":       httpStatusWord(status),
			"dependencies": deps,
		})
	}
}

func httpStatusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
