package restapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
)

const unmatchedRoute = "unmatched"

// MetricsHandler returns middleware that records request counts and latency
// per route template. A nil m yields a pass-through middleware.
func MetricsHandler(m *metrics.Metrics) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &metricsResponseWriter{ResponseWriter: w}

			next.ServeHTTP(wrapped, r)

			route := routeLabel(r.Pattern)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeLabel turns a ServeMux pattern such as "GET /api/stops/{stopID}/arrivals"
// into its path template. Raw paths are never used as labels.
func routeLabel(pattern string) string {
	if pattern == "" {
		return unmatchedRoute
	}
	if _, path, found := strings.Cut(pattern, " "); found {
		return path
	}
	return pattern
}

// metricsResponseWriter records the first status code written and the
// body size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if w.statusCode == 0 {
		w.statusCode = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

func (w *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *metricsResponseWriter) status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}
