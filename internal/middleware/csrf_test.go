package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/models"
)

func TestCSRFProtection(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := CSRFProtection(logger)(okHandler())

	cookieSession := &auth.Session{Claims: &models.TokenClaims{UserID: "u1"}, FromCookie: true}
	bearerSession := &auth.Session{Claims: &models.TokenClaims{UserID: "u1"}}

	tests := []struct {
		name    string
		method  string
		session *auth.Session
		cookie  string
		header  string
		want    int
	}{
		{"safe method", http.MethodGet, cookieSession, "", "", http.StatusOK},
		{"anonymous", http.MethodPost, nil, "", "", http.StatusOK},
		{"bearer exempt", http.MethodPost, bearerSession, "", "", http.StatusOK},
		{"cookie without token", http.MethodPost, cookieSession, "", "", http.StatusForbidden},
		{"cookie header only", http.MethodDelete, cookieSession, "", "abc", http.StatusForbidden},
		{"cookie mismatch", http.MethodPatch, cookieSession, "abc", "xyz", http.StatusForbidden},
		{"cookie match", http.MethodPut, cookieSession, "abc", "abc", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/books", nil)
			if tt.session != nil {
				req = req.WithContext(auth.WithSession(req.Context(), tt.session))
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(auth.CSRFHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
