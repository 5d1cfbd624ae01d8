package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports liveness and, when a check is configured, whether
// the database answers.
type HealthHandler struct {
	check  func(ctx context.Context) error
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. check may be nil.
func NewHealthHandler(check func(ctx context.Context) error, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{check: check, logger: logger}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.check(ctx); err != nil {
			h.logger.Warn("health check failed", slog.Any("error", err))
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "database unavailable")
			return
		}
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"status": "ok"})
}
