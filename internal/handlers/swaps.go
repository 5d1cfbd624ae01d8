package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/services"
	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

// SwapServiceInterface defines the interface for the swap workflow
type SwapServiceInterface interface {
	RequestSwap(ctx context.Context, identity *models.Identity, in services.SwapRequestInput) (*models.SwapRequest, error)
	Resolve(ctx context.Context, requestID, action string, identity *models.Identity) (*models.SwapRequest, error)
	ListByRequester(ctx context.Context, identity *models.Identity) ([]*models.SwapDetail, error)
	ListByOwner(ctx context.Context, identity *models.Identity) ([]*models.SwapDetail, error)
}

// SwapHandler handles swap request HTTP requests
type SwapHandler struct {
	service   SwapServiceInterface
	presenter bookPresenter
}

// NewSwapHandler creates a new SwapHandler
func NewSwapHandler(service SwapServiceInterface, publicBaseURL string) *SwapHandler {
	return &SwapHandler{
		service:   service,
		presenter: bookPresenter{publicBaseURL: publicBaseURL},
	}
}

// SwapRequestBody represents the request body for proposing a swap
type SwapRequestBody struct {
	TargetBookID  string `json:"targetBookId" validate:"required"`
	OfferedBookID string `json:"offeredBookId" validate:"required"`
	Message       string `json:"message" validate:"max=1000"`
}

// ResolveSwapBody represents the request body for PATCH /swaps/{id}
type ResolveSwapBody struct {
	Action string `json:"action" validate:"required"`
}

// Request proposes a swap
// @Summary Request a swap
// @Accept json
// @Param request body SwapRequestBody true "Swap request"
// @Produce json
// @Success 201 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 403 {object} pkghttp.Envelope
// @Router /swaps/request [post]
func (h *SwapHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req SwapRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	swap, err := h.service.RequestSwap(r.Context(), auth.IdentityFromContext(r.Context()), services.SwapRequestInput{
		TargetBookID:  req.TargetBookID,
		OfferedBookID: req.OfferedBookID,
		Message:       req.Message,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteCreated(w, pkghttp.Envelope{"swap": h.presenter.swap(swap)})
}

// Mine lists the swaps the caller requested
func (h *SwapHandler) Mine(w http.ResponseWriter, r *http.Request) {
	swaps, err := h.service.ListByRequester(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"swaps": h.presenter.swapDetails(swaps)})
}

// Incoming lists the swaps targeting the caller's books
func (h *SwapHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	swaps, err := h.service.ListByOwner(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"swaps": h.presenter.swapDetails(swaps)})
}

// Approve, Reject and Cancel are the fixed-action forms of Resolve.
func (h *SwapHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, models.SwapActionApprove)
}

func (h *SwapHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, models.SwapActionReject)
}

func (h *SwapHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, models.SwapActionCancel)
}

// Resolve applies the action named in the body
// @Summary Resolve a swap
// @Accept json
// @Param request body ResolveSwapBody true "approve, reject or cancel"
// @Produce json
// @Router /swaps/{id} [patch]
func (h *SwapHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveSwapBody
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	h.resolve(w, r, req.Action)
}

func (h *SwapHandler) resolve(w http.ResponseWriter, r *http.Request, action string) {
	swap, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), action, auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"swap": h.presenter.swap(swap)})
}
