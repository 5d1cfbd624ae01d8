package http_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteOK(w, pkghttp.Envelope{"book": map[string]string{"id": "1"}})

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Contains(t, body, "book")
}

func TestWriteOK_PayloadCannotOverrideOK(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteOK(w, pkghttp.Envelope{"ok": false})

	assert.Equal(t, true, decode(t, w)["ok"])
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "test_error", body["code"])
	assert.Equal(t, "Test message", body["error"])
}

func TestWriteLocked(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteLocked(w, "Account locked", 42)

	assert.Equal(t, 423, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["locked"])
	assert.Equal(t, float64(42), body["minutesLeft"])
	assert.Equal(t, "account_locked", body["code"])
}

func TestCommonErrorWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w *httptest.ResponseRecorder)
		status int
		code   string
	}{
		{"bad request", func(w *httptest.ResponseRecorder) { pkghttp.WriteBadRequest(w, "m") }, 400, "bad_request"},
		{"unauthorized", func(w *httptest.ResponseRecorder) { pkghttp.WriteUnauthorized(w, "m") }, 401, "unauthorized"},
		{"forbidden", func(w *httptest.ResponseRecorder) { pkghttp.WriteForbidden(w, "m") }, 403, "forbidden"},
		{"not found", func(w *httptest.ResponseRecorder) { pkghttp.WriteNotFound(w, "m") }, 404, "not_found"},
		{"conflict", func(w *httptest.ResponseRecorder) { pkghttp.WriteConflict(w, "m") }, 409, "conflict"},
		{"rate limit", func(w *httptest.ResponseRecorder) { pkghttp.WriteTooManyRequests(w, "m") }, 429, "rate_limit_exceeded"},
		{"internal", func(w *httptest.ResponseRecorder) { pkghttp.WriteInternalError(w, "m") }, 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, "m", body["error"])
			assert.Equal(t, false, body["ok"])
		})
	}
}
