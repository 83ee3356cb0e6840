package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

const (
	correlationHeader = "X-Correlation-ID"
	requestIDHeader   = "X-Request-ID"
	maxCorrelationLen = 128
)

// CorrelationID tags every request with an ID taken from X-Correlation-ID,
// or X-Request-ID as set by most proxies, or a fresh UUID. Oversized values
// are replaced so they cannot bloat log lines. The ID is echoed back in
// X-Correlation-ID.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = r.Header.Get(requestIDHeader)
		}
		if id == "" || len(id) > maxCorrelationLen {
			id = uuid.New().String()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationIDKey, id)))
	})
}

// GetCorrelationID returns the ID stored by CorrelationID, or "".
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
