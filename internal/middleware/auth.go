package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"dzchess-analyzer/pkg/apierror"
)

// publicPaths never require a key.
var publicPaths = map[string]bool{
	"/api/v1/health": true,
	"/api/v1/ready":  true,
	"/api/status":    true,
	"/metrics":       true,
}

// NewAuthMiddleware requires one of apiKeys in X-API-Key or as a bearer
// token. With no keys configured every request passes.
func NewAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 || publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use X-API-Key header."))
				return
			}
			if !isValidKey([]byte(apiKey), keys) {
				writeError(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidKey checks the key against every configured key in constant time.
func isValidKey(key []byte, validKeys [][]byte) bool {
	ok := false
	for _, valid := range validKeys {
		if subtle.ConstantTimeCompare(key, valid) == 1 {
			ok = true
		}
	}
	return ok
}
