package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/bookswap/internal/models"
	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

// writeServiceError maps a service error onto the response envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	var locked *models.LockedError
	if errors.As(err, &locked) {
		pkghttp.WriteLocked(w, locked.Error(), locked.MinutesLeft)
		return
	}
	var invalid *models.InvalidCredentialsError
	if errors.As(err, &invalid) {
		pkghttp.WriteErrorWithFields(w, http.StatusUnauthorized, "unauthorized", invalid.Error(),
			pkghttp.Envelope{"attemptsLeft": invalid.AttemptsLeft})
		return
	}

	switch {
	case errors.Is(err, models.ErrValidation):
		pkghttp.WriteBadRequest(w, models.Message(err, "Invalid request"))
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, models.Message(err, "Authentication required"))
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, models.Message(err, "Forbidden"))
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, models.Message(err, "Not found"))
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, models.Message(err, "Already exists"))
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
