package middleware

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/auth"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
	corsMaxAge       = "600"
)

// CORS admits exactly one trusted origin. Only that origin receives
// Access-Control-Allow-* headers, including Allow-Credentials. Other origins
// are logged and get no CORS headers, so browsers refuse the response.
// Preflight requests are answered with 204 either way.
func CORS(trustedOrigin string, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "cors").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			if trustedOrigin != "" && origin == trustedOrigin {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Expose-Headers", RequestIDHeader+", "+auth.TokenHeader)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			} else {
				logger.Warn().
					Str("origin", origin).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("cross-origin request from untrusted origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
