package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
)

// GenerateCSRFToken returns 32 random bytes, hex encoded.
func GenerateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidCSRF checks the double-submit pair: the X-CSRF-Token header must equal
// the csrf_token cookie.
func ValidCSRF(r *http.Request) bool {
	header := r.Header.Get(CSRFHeaderName)
	cookie, err := r.Cookie(CSRFCookieName)
	if header == "" || err != nil || cookie.Value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) == 1
}
