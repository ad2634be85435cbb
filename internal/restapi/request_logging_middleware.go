package restapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
)

// NewRequestLoggingMiddleware writes one access line per request, labelled
// with the matched route template. The logger stored in the request context
// carries the request id, so handler logs correlate with the access line.
func NewRequestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := GetRequestID(r.Context())
			reqLogger := logger
			if reqID != "" {
				reqLogger = logger.With(slog.String("request_id", reqID))
			}
			r = r.WithContext(logging.WithLogger(r.Context(), reqLogger))

			wrapped := &metricsResponseWriter{ResponseWriter: w}
			next.ServeHTTP(wrapped, r)

			// the mux fills in r.Pattern on the request it was handed
			logging.LogHTTPRequest(reqLogger,
				r.Method,
				r.URL.Path,
				wrapped.status(),
				float64(time.Since(start).Nanoseconds())/1e6,
				slog.String("route", routeLabel(r.Pattern)),
				slog.Int("bytes", wrapped.written),
				slog.String("user_agent", r.Header.Get("User-Agent")),
				slog.String("component", "http_server"))
		})
	}
}
