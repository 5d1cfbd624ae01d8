package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/models"
	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

// ModerationServiceInterface defines the moderation service contract.
type ModerationServiceInterface interface {
	ListBooks(ctx context.Context, identity *models.Identity, approval string) ([]*models.Book, error)
	Approve(ctx context.Context, identity *models.Identity, id string) (*models.Book, error)
	Reject(ctx context.Context, identity *models.Identity, id string) (*models.Book, error)
	Delete(ctx context.Context, identity *models.Identity, id string) error
}

// AdminHandler handles moderation HTTP requests.
type AdminHandler struct {
	service   ModerationServiceInterface
	presenter bookPresenter
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service ModerationServiceInterface, publicBaseURL string) *AdminHandler {
	return &AdminHandler{
		service:   service,
		presenter: bookPresenter{publicBaseURL: publicBaseURL},
	}
}

// ListBooks handles GET /admin/books
// Accepts optional query param ?approval=pending|approved|rejected.
func (h *AdminHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context(), auth.IdentityFromContext(r.Context()), r.URL.Query().Get("approval"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"books": h.presenter.books(books)})
}

// ApproveBook handles PATCH /admin/books/{id}/approve
func (h *AdminHandler) ApproveBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.Approve(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"book": h.presenter.book(book)})
}

// RejectBook handles PATCH /admin/books/{id}/reject
func (h *AdminHandler) RejectBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.Reject(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"book": h.presenter.book(book)})
}

// DeleteBook handles DELETE /admin/books/{id}
func (h *AdminHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"message": "book deleted"})
}
