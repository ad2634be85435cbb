package restapi

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

const maxRequestIDLength = 128

var validRequestIDRegex = regexp.MustCompile(`^[a-zA-Z0-9-._:]+$`)

// RequestIDMiddleware propagates a caller-supplied X-Request-ID when it is
// well formed and otherwise assigns a fresh UUID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestIDFromHeader(r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, reqID)))
	})
}

func requestIDFromHeader(v string) string {
	if v == "" || len(v) > maxRequestIDLength || !validRequestIDRegex.MatchString(v) {
		return uuid.NewString()
	}
	return v
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
