package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BradenHooton/bookswap/internal/metrics"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/policy"
	"github.com/BradenHooton/bookswap/internal/repositories"
	pkglogger "github.com/BradenHooton/bookswap/pkg/logger"
)

// ModerationService lets admins approve, reject and remove listings.
// Every method checks the caller is an admin, even behind admin-only routes.
type ModerationService struct {
	store       repositories.Store
	books       *BookService
	policy      *policy.Policy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics
}

func NewModerationService(
	store repositories.Store,
	books *BookService,
	p *policy.Policy,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *ModerationService {
	return &ModerationService{
		store:       store,
		books:       books,
		policy:      p,
		logger:      logger,
		auditLogger: auditLogger,
		metrics:     m,
	}
}

func (s *ModerationService) requireAdmin(identity *models.Identity) error {
	if identity == nil {
		return models.ErrUnauthorized
	}
	if !s.policy.IsAdmin(identity) {
		return models.NewForbiddenError("admin only")
	}
	return nil
}

// ListBooks returns every book, or only those with the given approval state,
// newest first.
func (s *ModerationService) ListBooks(ctx context.Context, identity *models.Identity, approval string) ([]*models.Book, error) {
	if err := s.requireAdmin(identity); err != nil {
		return nil, err
	}
	approval = strings.ToLower(strings.TrimSpace(approval))
	if approval != "" && !models.ValidApproval(approval) {
		return nil, models.NewValidationError("approval must be pending, approved or rejected")
	}

	books, err := s.store.Books().List(ctx, models.BookFilter{Approval: approval})
	if err != nil {
		s.logger.Error("failed to list books for moderation", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return books, nil
}

// Approve makes a book publicly visible. Approving twice is a no-op.
func (s *ModerationService) Approve(ctx context.Context, identity *models.Identity, id string) (*models.Book, error) {
	return s.setApproval(ctx, identity, id, models.ApprovalApproved)
}

// Reject hides a book from the public catalog. Pending swap requests that
// name it are left for their parties to resolve.
func (s *ModerationService) Reject(ctx context.Context, identity *models.Identity, id string) (*models.Book, error) {
	return s.setApproval(ctx, identity, id, models.ApprovalRejected)
}

func (s *ModerationService) setApproval(ctx context.Context, identity *models.Identity, id, approval string) (*models.Book, error) {
	if err := s.requireAdmin(identity); err != nil {
		return nil, err
	}

	book, err := s.store.Books().UpdateApproval(ctx, id, approval)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewNotFoundError("book not found")
		}
		s.logger.Error("failed to update approval", slog.String("book_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogBookAction("book_"+approval, book.ID, identity.UserID, map[string]string{
		"public_id": book.PublicID,
	})
	if s.metrics != nil {
		s.metrics.ModerationDecision.WithLabelValues(approval).Inc()
	}
	return book, nil
}

// Delete removes any book with the same cascade as an owner's delete.
func (s *ModerationService) Delete(ctx context.Context, identity *models.Identity, id string) error {
	if err := s.requireAdmin(identity); err != nil {
		return err
	}
	return s.books.delete(ctx, id, identity, func(*models.Book) bool { return true })
}
