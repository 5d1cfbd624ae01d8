package auth

import (
	"net/http"
	"time"
)

const (
	SessionCookieName = "session"
	CSRFCookieName    = "csrf_token"
	CSRFHeaderName    = "X-CSRF-Token"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain string // Empty string = current host only
	Secure bool   // HTTPS only
}

// SetSessionCookies stores the session token in an httpOnly cookie and the
// CSRF token in a cookie readable by the client, which echoes it back in
// the X-CSRF-Token header.
func SetSessionCookies(w http.ResponseWriter, sessionToken, csrfToken string, ttl time.Duration, config CookieConfig) {
	maxAge := int(ttl.Seconds())
	expires := time.Now().Add(ttl)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: false,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(w http.ResponseWriter, config CookieConfig) {
	for _, name := range []string{SessionCookieName, CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   config.Domain,
			MaxAge:   -1,
			HttpOnly: name == SessionCookieName,
			Secure:   config.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
