package api

import (
	"crypto/subtle"
	"net/http"
)

// InternalAPIKeyMiddleware guards the intake endpoints with a shared-secret
// header check. When no key is configured the middleware passes everything
// through, which keeps local development friction-free.
func InternalAPIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				provided := r.Header.Get("X-Internal-Api-Key")
				if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
