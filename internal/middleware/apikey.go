package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/Rorqualx/crawlpool/internal/config"
)

// APIKey returns middleware that requires the configured API key in the
// X-API-Key header or as a bearer token. It is a pass-through when API key
// authentication is disabled. /health stays open for load balancers.
func APIKey(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.APIKeyEnabled || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			// An empty configured key must never match an empty header.
			if cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
				writeErrorResponse(w, http.StatusUnauthorized, kindUnauthorized, "Invalid or missing API key", time.Now())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
