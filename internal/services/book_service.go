package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bookswap/internal/metrics"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/policy"
	"github.com/BradenHooton/bookswap/internal/repositories"
	"github.com/BradenHooton/bookswap/internal/storage"
	pkglogger "github.com/BradenHooton/bookswap/pkg/logger"
	"github.com/BradenHooton/bookswap/pkg/publicid"
)

const publicIDAttempts = 3

// ImageUpload is an image file received with a create or update request.
type ImageUpload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
}

// CreateBookInput holds the fields of a new listing. Upload takes precedence
// over ImageRef.
type CreateBookInput struct {
	Title       string
	Author      string
	Description string
	ImageRef    string
	Upload      *ImageUpload
}

// BookService manages the catalog.
type BookService struct {
	store       repositories.Store
	images      storage.ImageStore
	policy      *policy.Policy
	notifier    Notifier
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics
	newPublicID func() string
	now         func() time.Time
}

// NewBookService creates a BookService. images, notifier and m may be nil.
func NewBookService(
	store repositories.Store,
	images storage.ImageStore,
	p *policy.Policy,
	notifier Notifier,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *BookService {
	return &BookService{
		store:       store,
		images:      images,
		policy:      p,
		notifier:    notifier,
		logger:      logger,
		auditLogger: auditLogger,
		metrics:     m,
		newPublicID: publicid.New,
		now:         time.Now,
	}
}

// Create lists a new book for the caller. It starts pending moderation and available.
func (s *BookService) Create(ctx context.Context, identity *models.Identity, in CreateBookInput) (*models.Book, error) {
	if identity == nil {
		return nil, models.ErrUnauthorized
	}
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	if title == "" || author == "" {
		return nil, models.NewValidationError("title and author are required")
	}

	owner, err := s.store.Users().GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get book owner", slog.String("user_id", identity.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	image, uploaded, err := s.resolveImage(ctx, in.ImageRef, in.Upload)
	if err != nil {
		return nil, err
	}

	book := &models.Book{
		Title:       title,
		Author:      author,
		Description: strings.TrimSpace(in.Description),
		Image:       image,
		OwnerID:     owner.ID,
		OwnerEmail:  owner.Email,
		Status:      models.BookStatusAvailable,
		Approval:    models.ApprovalPending,
	}

	var created *models.Book
	for attempt := 1; attempt <= publicIDAttempts; attempt++ {
		book.PublicID = s.newPublicID()
		created, err = s.store.Books().Create(ctx, book)
		if err == nil || !errors.Is(err, models.ErrConflict) {
			break
		}
		s.logger.Warn("public id collision, retrying",
			slog.String("public_id", book.PublicID),
			slog.Int("attempt", attempt))
	}
	if err != nil {
		if uploaded {
			s.releaseImage(ctx, image)
		}
		s.logger.Error("failed to create book", slog.String("owner_id", owner.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogBookAction("book_created", created.ID, identity.UserID, map[string]string{
		"public_id": created.PublicID,
	})
	if s.metrics != nil {
		s.metrics.BooksCreated.Inc()
	}
	return created, nil
}

// resolveImage stores an upload or normalizes a reference. uploaded reports
// whether a new object was stored and must be released on failure.
func (s *BookService) resolveImage(ctx context.Context, ref string, upload *ImageUpload) (image *string, uploaded bool, err error) {
	if upload == nil {
		return storage.NormalizeImageRef(ref), false, nil
	}
	if s.images == nil {
		return nil, false, models.NewValidationError("image uploads are not enabled")
	}

	stored, err := s.images.Put(ctx, upload.Reader, upload.Size, upload.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) {
			return nil, false, models.NewValidationError("image must be a JPEG, PNG, GIF or WebP file")
		}
		if errors.Is(err, storage.ErrImageTooLarge) {
			return nil, false, models.NewValidationError("image must be at most 5 MB")
		}
		s.logger.Error("failed to store image", slog.Any("error", err))
		return nil, false, models.ErrInternalServer
	}
	return &stored, true, nil
}

func (s *BookService) releaseImage(ctx context.Context, ref *string) {
	if s.images == nil || ref == nil {
		return
	}
	if err := s.images.Release(ctx, *ref); err != nil {
		s.logger.Warn("failed to release image", slog.String("image", *ref), slog.Any("error", err))
	}
}

// ListPublic returns approved books, newest first. query matches title or
// author case-insensitively; status, when set, must be a known book status.
func (s *BookService) ListPublic(ctx context.Context, query, status string) ([]*models.Book, error) {
	status = strings.TrimSpace(status)
	if status != "" && !models.ValidBookStatus(status) {
		return nil, models.NewValidationError("status must be available or swapped")
	}
	return s.list(ctx, models.BookFilter{
		Approval: models.ApprovalApproved,
		Status:   status,
		Query:    strings.TrimSpace(query),
	})
}

// ListMine returns every book the caller owns regardless of state.
func (s *BookService) ListMine(ctx context.Context, identity *models.Identity) ([]*models.Book, error) {
	if identity == nil {
		return nil, models.ErrUnauthorized
	}
	return s.list(ctx, models.BookFilter{OwnerID: identity.UserID})
}

func (s *BookService) list(ctx context.Context, filter models.BookFilter) ([]*models.Book, error) {
	books, err := s.store.Books().List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list books", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return books, nil
}

// Get returns a book. Books not yet approved are visible to their owner and
// admins only; everyone else gets NotFound.
func (s *BookService) Get(ctx context.Context, id string, identity *models.Identity) (*models.Book, error) {
	book, err := s.store.Books().GetByID(ctx, id)
	if err != nil {
		return nil, s.bookLookupError(err, id)
	}
	if !s.policy.CanViewBook(identity, book) {
		return nil, models.NewNotFoundError("book not found")
	}
	return book, nil
}

func (s *BookService) bookLookupError(err error, id string) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.NewNotFoundError("book not found")
	}
	s.logger.Error("failed to get book", slog.String("book_id", id), slog.Any("error", err))
	return models.ErrInternalServer
}

// Update applies the present fields of patch. A new upload replaces
// patch.Image. The previous stored image is released once the change commits.
func (s *BookService) Update(ctx context.Context, id string, identity *models.Identity, patch models.BookPatch, upload *ImageUpload) (*models.Book, error) {
	if identity == nil {
		return nil, models.ErrUnauthorized
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, models.NewValidationError("title cannot be blank")
	}
	if patch.Author != nil && strings.TrimSpace(*patch.Author) == "" {
		return nil, models.NewValidationError("author cannot be blank")
	}
	if patch.Status != nil && !models.ValidBookStatus(*patch.Status) {
		return nil, models.NewValidationError("status must be available or swapped")
	}

	var newImage *string
	var uploaded bool
	if upload != nil {
		stored, ok, err := s.resolveImage(ctx, "", upload)
		if err != nil {
			return nil, err
		}
		newImage, uploaded = stored, ok
	}

	var updated *models.Book
	var oldImage *string
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		book, err := tx.Books().GetForUpdate(ctx, id)
		if err != nil {
			return s.bookLookupError(err, id)
		}
		if !s.policy.CanModifyBook(identity, book) {
			return models.NewForbiddenError("only the owner or an admin can edit this book")
		}

		if patch.Title != nil {
			book.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Author != nil {
			book.Author = strings.TrimSpace(*patch.Author)
		}
		if patch.Description != nil {
			book.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Status != nil {
			book.Status = *patch.Status
		}

		switch {
		case uploaded:
			oldImage, book.Image = book.Image, newImage
		case patch.Image != nil:
			oldImage, book.Image = book.Image, storage.NormalizeImageRef(*patch.Image)
		}

		updated, err = tx.Books().Update(ctx, book)
		if err != nil {
			s.logger.Error("failed to update book", slog.String("book_id", id), slog.Any("error", err))
			return models.ErrInternalServer
		}
		return nil
	})
	if err != nil {
		if uploaded {
			s.releaseImage(ctx, newImage)
		}
		return nil, err
	}

	if oldImage != nil && (updated.Image == nil || *oldImage != *updated.Image) {
		s.releaseImage(ctx, oldImage)
	}

	s.auditLogger.LogBookAction("book_updated", updated.ID, identity.UserID, nil)
	return updated, nil
}

// Delete removes a book the caller owns (or any book, for admins). Pending
// swap requests that reference it are rejected in the same transaction.
func (s *BookService) Delete(ctx context.Context, id string, identity *models.Identity) error {
	if identity == nil {
		return models.ErrUnauthorized
	}
	return s.delete(ctx, id, identity, func(book *models.Book) bool {
		return s.policy.CanModifyBook(identity, book)
	})
}

func (s *BookService) delete(ctx context.Context, id string, identity *models.Identity, allowed func(*models.Book) bool) error {
	var deleted *models.Book
	var rejected []*models.SwapRequest

	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		book, err := tx.Books().GetForUpdate(ctx, id)
		if err != nil {
			return s.bookLookupError(err, id)
		}
		if !allowed(book) {
			return models.NewForbiddenError("only the owner or an admin can delete this book")
		}

		rejected, err = tx.Swaps().RejectPendingForBooks(ctx, []string{book.ID}, "", s.now().UTC())
		if err != nil {
			s.logger.Error("failed to reject pending swaps", slog.String("book_id", id), slog.Any("error", err))
			return models.ErrInternalServer
		}
		if err := tx.Books().Delete(ctx, book.ID); err != nil {
			s.logger.Error("failed to delete book", slog.String("book_id", id), slog.Any("error", err))
			return models.ErrInternalServer
		}
		deleted = book
		return nil
	})
	if err != nil {
		return err
	}

	s.releaseImage(ctx, deleted.Image)
	s.auditLogger.LogBookAction("book_deleted", deleted.ID, identity.UserID, map[string]string{
		"public_id":      deleted.PublicID,
		"swaps_rejected": strconv.Itoa(len(rejected)),
	})
	if s.metrics != nil {
		s.metrics.RecordBookDeleted(len(rejected))
	}
	notifyResolved(ctx, s.notifier, s.logger, rejected)
	return nil
}
