package middleware

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bookswap/internal/auth"
	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

// CSRFProtection enforces the double-submit check on state-changing requests
// authenticated by the session cookie. Bearer-token requests are exempt since
// browsers never attach the Authorization header on their own.
// Must run after the authenticator.
func CSRFProtection(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			session := auth.SessionFromContext(r.Context())
			if session == nil || !session.FromCookie {
				next.ServeHTTP(w, r)
				return
			}

			if !auth.ValidCSRF(r) {
				logger.Warn("CSRF token validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("user_id", session.Claims.UserID))
				pkghttp.WriteError(w, http.StatusForbidden, "csrf_invalid", "CSRF token missing or invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
