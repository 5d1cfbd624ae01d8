package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/services"
	"github.com/BradenHooton/bookswap/internal/storage"
	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

const (
	// multipartMemory is the part of a form kept in memory before spilling to disk.
	multipartMemory = 1 << 20
	// multipartOverhead leaves room for the text fields next to the image.
	multipartOverhead = 64 << 10
)

// BookServiceInterface defines the interface for catalog business logic
type BookServiceInterface interface {
	Create(ctx context.Context, identity *models.Identity, in services.CreateBookInput) (*models.Book, error)
	ListPublic(ctx context.Context, query, status string) ([]*models.Book, error)
	ListMine(ctx context.Context, identity *models.Identity) ([]*models.Book, error)
	Get(ctx context.Context, id string, identity *models.Identity) (*models.Book, error)
	Update(ctx context.Context, id string, identity *models.Identity, patch models.BookPatch, upload *services.ImageUpload) (*models.Book, error)
	Delete(ctx context.Context, id string, identity *models.Identity) error
}

// BookHandler handles catalog HTTP requests
type BookHandler struct {
	service   BookServiceInterface
	presenter bookPresenter
}

// NewBookHandler creates a new BookHandler. publicBaseURL prefixes relative
// image paths in responses.
func NewBookHandler(service BookServiceInterface, publicBaseURL string) *BookHandler {
	return &BookHandler{
		service:   service,
		presenter: bookPresenter{publicBaseURL: publicBaseURL},
	}
}

// CreateBookRequest represents the request body for a new listing
type CreateBookRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Author      string `json:"author" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Image       string `json:"image" validate:"max=2048"`
}

// UpdateBookRequest represents the request body for editing a listing.
// Omitted fields are left unchanged.
type UpdateBookRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Author      *string `json:"author" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Status      *string `json:"status" validate:"omitempty,oneof=available swapped"`
	Image       *string `json:"image" validate:"omitempty,max=2048"`
}

// List returns approved books
// @Summary List approved books
// @Param q query string false "Title or author search"
// @Param status query string false "available or swapped"
// @Produce json
// @Router /books [get]
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books, err := h.service.ListPublic(r.Context(), q.Get("q"), q.Get("status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"books": h.presenter.books(books)})
}

// Mine returns the caller's books in every state
func (h *BookHandler) Mine(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListMine(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"books": h.presenter.books(books)})
}

// Get returns a single book
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"book": h.presenter.book(book)})
}

// Create lists a new book. Accepts JSON, or multipart/form-data with an
// optional "image" file.
// @Summary Create a book
// @Accept json,mpfd
// @Produce json
// @Success 201 {object} pkghttp.Envelope
// @Router /books [post]
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	var upload *services.ImageUpload

	if isMultipart(r) {
		form, err := parseBookForm(w, r)
		if err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		defer form.close()
		req = CreateBookRequest{
			Title:       form.value("title"),
			Author:      form.value("author"),
			Description: form.value("description"),
			Image:       form.value("image"),
		}
		if err := ValidateRequest(req); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		upload = form.upload
	} else if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	book, err := h.service.Create(r.Context(), auth.IdentityFromContext(r.Context()), services.CreateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		ImageRef:    req.Image,
		Upload:      upload,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteCreated(w, pkghttp.Envelope{"book": h.presenter.book(book)})
}

// Update edits a listing owned by the caller
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateBookRequest
	var upload *services.ImageUpload

	if isMultipart(r) {
		form, err := parseBookForm(w, r)
		if err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		defer form.close()
		req = UpdateBookRequest{
			Title:       form.optional("title"),
			Author:      form.optional("author"),
			Description: form.optional("description"),
			Status:      form.optional("status"),
			Image:       form.optional("image"),
		}
		if err := ValidateRequest(req); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		upload = form.upload
	} else if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	patch := models.BookPatch{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Status:      req.Status,
		Image:       req.Image,
	}
	book, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), auth.IdentityFromContext(r.Context()), patch, upload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"book": h.presenter.book(book)})
}

// Delete removes a listing and rejects the pending swap requests naming it
func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), auth.IdentityFromContext(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, pkghttp.Envelope{"message": "book deleted"})
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// bookForm is a parsed multipart book submission.
type bookForm struct {
	form   *multipart.Form
	values map[string][]string
	upload *services.ImageUpload
	file   multipart.File
}

func parseBookForm(w http.ResponseWriter, r *http.Request) (*bookForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.New("image exceeds the 5 MB limit")
		}
		return nil, errors.New("invalid multipart form")
	}

	form := &bookForm{form: r.MultipartForm, values: r.MultipartForm.Value}
	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return form, nil
	case err != nil:
		form.close()
		return nil, errors.New("invalid image upload")
	}

	form.file = file
	form.upload = &services.ImageUpload{
		Reader:      file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	}
	return form, nil
}

func (f *bookForm) value(key string) string {
	if v := f.values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// optional returns nil for fields absent from the form.
func (f *bookForm) optional(key string) *string {
	if v, ok := f.values[key]; ok && len(v) > 0 {
		return &v[0]
	}
	return nil
}

func (f *bookForm) close() {
	if f.file != nil {
		_ = f.file.Close()
	}
	_ = f.form.RemoveAll()
}
