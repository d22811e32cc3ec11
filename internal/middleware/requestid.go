package middleware

import (
	"net/http"

	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/pkg/uid"
)

const maxRequestIDLen = 64

// RequestID tags each request with an id, taken from X-Request-ID when the
// client sends a sane one, and stores a logger carrying it in the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > maxRequestIDLen {
			id = uid.New()
		}
		w.Header().Set("X-Request-ID", id)

		reqLog := logging.For("http").With().Str("request_id", id).Logger()
		ctx := logging.WithContext(r.Context(), reqLog)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
