package http

import (
	"encoding/json"
	"net/http"
)

// Envelope is the JSON body of every API response. Successful responses carry
// "ok": true plus their payload keys; failures carry "ok": false, a
// human-readable "error" and a machine-readable "code".
type Envelope map[string]any

// WriteJSON writes payload with "ok" set according to statusCode.
func WriteJSON(w http.ResponseWriter, statusCode int, payload Envelope) {
	body := make(Envelope, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["ok"] = statusCode < http.StatusBadRequest

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Encoding errors are not exposed to the client
	_ = json.NewEncoder(w).Encode(body)
}

func WriteOK(w http.ResponseWriter, payload Envelope) {
	WriteJSON(w, http.StatusOK, payload)
}

func WriteCreated(w http.ResponseWriter, payload Envelope) {
	WriteJSON(w, http.StatusCreated, payload)
}

// WriteError writes a failure envelope with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithFields(w, statusCode, errorCode, message, nil)
}

// WriteErrorWithFields writes a failure envelope with extra top-level fields,
// such as "attemptsLeft" on a failed login.
func WriteErrorWithFields(w http.ResponseWriter, statusCode int, errorCode, message string, fields Envelope) {
	body := Envelope{"error": message, "code": errorCode}
	for k, v := range fields {
		body[k] = v
	}
	WriteJSON(w, statusCode, body)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteLocked(w http.ResponseWriter, message string, minutesLeft int) {
	WriteErrorWithFields(w, http.StatusLocked, "account_locked", message, Envelope{
		"locked":      true,
		"minutesLeft": minutesLeft,
	})
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
