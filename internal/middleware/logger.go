package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"thumbgen/internal/metrics"
)

// LoggerMiddleware logs each request and records request metrics keyed by route pattern.
// m may be nil.
func LoggerMiddleware(logger zerolog.Logger, m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			route := routePattern(r)

			if m != nil {
				m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
				m.RequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
			}

			evt := logger.Debug()
			if status >= http.StatusInternalServerError {
				evt = logger.Warn()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.RequestURI()).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", duration).
				Msg("HTTP request")
		})
	}
}

// routePattern keeps metric label cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
