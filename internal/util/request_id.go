package util

import (
	"log/slog"
	"net/http"
)

const requestIDHeader = "X-Request-ID"

// WithRequestID assigns every request an ID, echoes it in the response,
// and stores a logger annotated with it in the request context.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = NewID()
		}
		w.Header().Set(requestIDHeader, id)

		logger := slog.Default().With("request_id", id)
		ctx := ContextWithLogger(r.Context(), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
