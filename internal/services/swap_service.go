package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bookswap/internal/metrics"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/policy"
	"github.com/BradenHooton/bookswap/internal/repositories"
	pkglogger "github.com/BradenHooton/bookswap/pkg/logger"
)

const notifyTimeout = 10 * time.Second

// SwapRequestInput names the books of a proposed swap.
type SwapRequestInput struct {
	TargetBookID  string
	OfferedBookID string
	Message       string
}

// SwapService runs the swap request workflow and keeps book status in step
// with swap outcomes.
type SwapService struct {
	store       repositories.Store
	policy      *policy.Policy
	notifier    Notifier
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewSwapService creates a SwapService. notifier and m may be nil.
func NewSwapService(
	store repositories.Store,
	p *policy.Policy,
	notifier Notifier,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *SwapService {
	return &SwapService{
		store:       store,
		policy:      p,
		notifier:    notifier,
		logger:      logger,
		auditLogger: auditLogger,
		metrics:     m,
		now:         time.Now,
	}
}

// RequestSwap offers one of the caller's books in exchange for another
// user's book. Both book rows are locked for the duration of the checks, so a
// concurrent approval that takes either book waits for this request and then
// rejects it along with the other competing requests.
func (s *SwapService) RequestSwap(ctx context.Context, identity *models.Identity, in SwapRequestInput) (*models.SwapRequest, error) {
	if identity == nil {
		return nil, models.ErrUnauthorized
	}

	var created *models.SwapRequest
	var target, offered *models.Book

	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		books, err := s.lockBooks(ctx, tx, in.TargetBookID, in.OfferedBookID)
		if err != nil {
			return err
		}
		target, offered = books[in.TargetBookID], books[in.OfferedBookID]
		if target == nil {
			return models.NewNotFoundError("target book not found")
		}
		if offered == nil {
			return models.NewNotFoundError("offered book not found")
		}

		if !target.Swappable() {
			return models.NewValidationError("target book not swappable")
		}
		if offered.Status != models.BookStatusAvailable {
			return models.NewValidationError("offered book not available")
		}

		if target.OwnerID == "" {
			return models.NewValidationError("target book has no owner")
		}
		owner, err := tx.Users().GetByID(ctx, target.OwnerID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.NewValidationError("target book has no owner")
			}
			return s.internal("failed to get target owner", err)
		}
		if owner.ID == identity.UserID {
			return models.NewValidationError("cannot request own book")
		}

		if offered.Approval != models.ApprovalApproved {
			return models.NewValidationError("offered book not approved")
		}
		if offered.OwnerID != identity.UserID {
			return models.NewForbiddenError("offered book is not yours")
		}

		pending, err := tx.Swaps().ExistsPending(ctx, identity.UserID, target.ID)
		if err != nil {
			return s.internal("failed to check pending requests", err)
		}
		if pending {
			return models.NewValidationError("request already pending")
		}

		requesterEmail := identity.Email
		if requester, err := tx.Users().GetByID(ctx, identity.UserID); err == nil {
			requesterEmail = requester.Email
		}

		created, err = tx.Swaps().Create(ctx, &models.SwapRequest{
			TargetBookID:   target.ID,
			OfferedBookID:  offered.ID,
			RequesterID:    identity.UserID,
			RequesterEmail: requesterEmail,
			OwnerID:        owner.ID,
			OwnerEmail:     owner.Email,
			Message:        strings.TrimSpace(in.Message),
			Status:         models.SwapStatusPending,
		})
		if errors.Is(err, models.ErrConflict) {
			return models.NewValidationError("request already pending")
		}
		if err != nil {
			return s.internal("failed to create swap request", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogSwapTransition(created.ID, identity.UserID, created.Status, map[string]string{
		"target_book_id":  created.TargetBookID,
		"offered_book_id": created.OfferedBookID,
	})
	if s.metrics != nil {
		s.metrics.SwapRequests.Inc()
	}

	if s.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.SwapRequested(nctx, created, target, offered); err != nil {
			s.logger.Warn("swap request notification failed", slog.String("swap_id", created.ID), slog.Any("error", err))
		}
	}
	return created, nil
}

// Resolve applies action to a pending request.
//
// Approval locks both books in id order and then the request, marks both
// books swapped and rejects every other pending request that names either
// book. Books before requests is the lock order shared with RequestSwap and
// book deletion. A concurrent second resolution waits on the locks and then
// fails with "already resolved".
func (s *SwapService) Resolve(ctx context.Context, requestID, action string, identity *models.Identity) (*models.SwapRequest, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	status, ok := map[string]string{
		models.SwapActionApprove: models.SwapStatusApproved,
		models.SwapActionReject:  models.SwapStatusRejected,
		models.SwapActionCancel:  models.SwapStatusCancelled,
	}[action]
	if !ok {
		return nil, models.NewValidationError("invalid action")
	}
	if identity == nil {
		return nil, models.ErrUnauthorized
	}

	var resolved *models.SwapRequest
	var cascaded []*models.SwapRequest

	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		var books map[string]*models.Book
		if action == models.SwapActionApprove {
			peek, err := tx.Swaps().GetByID(ctx, requestID)
			if err != nil {
				return s.lookupError(err, "swap request not found")
			}
			if books, err = s.lockBooks(ctx, tx, peek.TargetBookID, peek.OfferedBookID); err != nil {
				return err
			}
		}

		swap, err := tx.Swaps().GetForUpdate(ctx, requestID)
		if err != nil {
			return s.lookupError(err, "swap request not found")
		}

		if !s.policy.CanResolveSwap(identity, swap, action) {
			if action == models.SwapActionCancel {
				return models.NewForbiddenError("only the requester can cancel this request")
			}
			return models.NewForbiddenError("only the book owner can approve or reject this request")
		}
		if !swap.IsPending() {
			return models.NewValidationError("already resolved")
		}

		now := s.now().UTC()
		if action == models.SwapActionApprove {
			cascaded, err = s.approve(ctx, tx, swap, books, now)
			if err != nil {
				return err
			}
		}

		if err := tx.Swaps().UpdateStatus(ctx, swap.ID, status, now); err != nil {
			return s.internal("failed to update swap status", err)
		}
		swap.Status = status
		swap.ResolvedAt = &now
		swap.UpdatedAt = now
		resolved = swap
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogSwapTransition(resolved.ID, identity.UserID, resolved.Status, map[string]string{
		"cascade_rejected": strconv.Itoa(len(cascaded)),
	})
	for _, c := range cascaded {
		s.auditLogger.LogSwapTransition(c.ID, identity.UserID, c.Status, map[string]string{
			"cause": "approved:" + resolved.ID,
		})
	}
	if s.metrics != nil {
		s.metrics.RecordSwapTransition(resolved.Status, len(cascaded))
	}

	if action != models.SwapActionCancel {
		notifyResolved(ctx, s.notifier, s.logger, append([]*models.SwapRequest{resolved}, cascaded...))
	}
	return resolved, nil
}

// approve checks both locked books are still available, marks them swapped
// and rejects the competing requests.
func (s *SwapService) approve(ctx context.Context, tx repositories.Store, swap *models.SwapRequest, books map[string]*models.Book, now time.Time) ([]*models.SwapRequest, error) {
	if swap.TargetBookID == "" || swap.OfferedBookID == "" {
		return nil, models.NewValidationError("book no longer available")
	}

	ids := []string{swap.TargetBookID, swap.OfferedBookID}
	sort.Strings(ids)
	for _, id := range ids {
		book, ok := books[id]
		if !ok || book.Status != models.BookStatusAvailable {
			return nil, models.NewValidationError("book no longer available")
		}
	}

	if err := tx.Books().UpdateStatus(ctx, ids, models.BookStatusSwapped); err != nil {
		return nil, s.internal("failed to mark books swapped", err)
	}
	cascaded, err := tx.Swaps().RejectPendingForBooks(ctx, ids, swap.ID, now)
	if err != nil {
		return nil, s.internal("failed to reject competing requests", err)
	}
	return cascaded, nil
}

// lockBooks locks the named books in id order and returns the ones that
// exist, keyed by id.
func (s *SwapService) lockBooks(ctx context.Context, tx repositories.Store, ids ...string) (map[string]*models.Book, error) {
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			sorted = append(sorted, id)
		}
	}
	sort.Strings(sorted)

	books := make(map[string]*models.Book, len(sorted))
	for _, id := range sorted {
		if _, locked := books[id]; locked {
			continue
		}
		book, err := tx.Books().GetForUpdate(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, s.internal("failed to lock book", err)
		}
		books[id] = book
	}
	return books, nil
}

func (s *SwapService) Approve(ctx context.Context, requestID string, identity *models.Identity) (*models.SwapRequest, error) {
	return s.Resolve(ctx, requestID, models.SwapActionApprove, identity)
}

func (s *SwapService) Reject(ctx context.Context, requestID string, identity *models.Identity) (*models.SwapRequest, error) {
	return s.Resolve(ctx, requestID, models.SwapActionReject, identity)
}

func (s *SwapService) Cancel(ctx context.Context, requestID string, identity *models.Identity) (*models.SwapRequest, error) {
	return s.Resolve(ctx, requestID, models.SwapActionCancel, identity)
}

// ListByRequester returns the requests the caller has made, newest first.
func (s *SwapService) ListByRequester(ctx context.Context, identity *models.Identity) ([]*models.SwapDetail, error) {
	if identity == nil {
		return nil, models.ErrUnauthorized
	}
	swaps, err := s.store.Swaps().ListByRequester(ctx, identity.UserID)
	if err != nil {
		return nil, s.internal("failed to list outgoing swaps", err)
	}
	return swaps, nil
}

// ListByOwner returns the requests made for the caller's books, newest first.
func (s *SwapService) ListByOwner(ctx context.Context, identity *models.Identity) ([]*models.SwapDetail, error) {
	if identity == nil {
		return nil, models.ErrUnauthorized
	}
	swaps, err := s.store.Swaps().ListByOwner(ctx, identity.UserID)
	if err != nil {
		return nil, s.internal("failed to list incoming swaps", err)
	}
	return swaps, nil
}

func (s *SwapService) lookupError(err error, notFound string) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.NewNotFoundError("%s", notFound)
	}
	return s.internal("failed to load record", err)
}

func (s *SwapService) internal(msg string, err error) error {
	s.logger.Error(msg, slog.Any("error", err))
	return models.ErrInternalServer
}

// notifyResolved tells each requester about their request's outcome. Failures
// are logged.
func notifyResolved(ctx context.Context, n Notifier, logger *slog.Logger, swaps []*models.SwapRequest) {
	if n == nil || len(swaps) == 0 {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	for _, sw := range swaps {
		if err := n.SwapResolved(nctx, sw); err != nil {
			logger.Warn("swap resolution notification failed", slog.String("swap_id", sw.ID), slog.Any("error", err))
		}
	}
}
