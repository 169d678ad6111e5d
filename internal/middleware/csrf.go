package middleware

import (
	"log/slog"
	"net/http"

	"github.com/dockeep/dockeep/internal/auth"
	pkghttp "github.com/dockeep/dockeep/pkg/http"
)

// RefreshCSRF guards the cookie-based refresh flow with a double-submit
// check: when the refresh token arrives as a cookie, the X-CSRF-Token header
// must match the csrf_token cookie issued alongside it. Clients that carry
// the refresh token in the request body send no cookies and are exempt, as is
// every bearer-token endpoint (the Authorization header cannot be attached by
// a cross-site form).
func RefreshCSRF(csrfManager *auth.CSRFTokenManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			refreshCookie, err := r.Cookie("refresh_token")
			if err != nil || refreshCookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			if headerToken == "" {
				logger.Warn("CSRF token missing on cookie refresh",
					slog.String("path", r.URL.Path))
				pkghttp.WriteForbidden(w, "CSRF token missing")
				return
			}

			csrfCookie, err := r.Cookie("csrf_token")
			if err != nil || csrfCookie.Value != headerToken || !csrfManager.IsKnown(headerToken) {
				logger.Warn("CSRF token mismatch on cookie refresh",
					slog.String("path", r.URL.Path))
				pkghttp.WriteForbidden(w, "CSRF token invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
