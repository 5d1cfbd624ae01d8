package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/bookswap/internal/models"
)

// UserRepository persists accounts and their lockout state.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetForUpdate reads the user and, inside a transaction, locks the row until commit.
	GetForUpdate(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateLockout(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error
	UpdateRole(ctx context.Context, id, role string) error
	// ClearExpiredLocks resets the lockout state of every account whose lock
	// ended before now and reports how many were reset.
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

// BookRepository persists catalog listings.
type BookRepository interface {
	Create(ctx context.Context, book *models.Book) (*models.Book, error)
	GetByID(ctx context.Context, id string) (*models.Book, error)
	GetForUpdate(ctx context.Context, id string) (*models.Book, error)
	List(ctx context.Context, filter models.BookFilter) ([]*models.Book, error)
	// Update writes every mutable field of book. PublicID and OwnerID are immutable.
	Update(ctx context.Context, book *models.Book) (*models.Book, error)
	UpdateStatus(ctx context.Context, ids []string, status string) error
	UpdateApproval(ctx context.Context, id, approval string) (*models.Book, error)
	Delete(ctx context.Context, id string) error
}

// SwapRepository persists swap requests.
type SwapRepository interface {
	Create(ctx context.Context, swap *models.SwapRequest) (*models.SwapRequest, error)
	GetByID(ctx context.Context, id string) (*models.SwapRequest, error)
	GetForUpdate(ctx context.Context, id string) (*models.SwapRequest, error)
	ExistsPending(ctx context.Context, requesterID, targetBookID string) (bool, error)
	UpdateStatus(ctx context.Context, id, status string, resolvedAt time.Time) error
	// RejectPendingForBooks rejects every pending request that references any of
	// bookIDs as target or offered book, except excludeID, and returns them.
	RejectPendingForBooks(ctx context.Context, bookIDs []string, excludeID string, at time.Time) ([]*models.SwapRequest, error)
	ListByRequester(ctx context.Context, userID string) ([]*models.SwapDetail, error)
	ListByOwner(ctx context.Context, userID string) ([]*models.SwapDetail, error)
}

// Store groups the repositories so a unit of work can span all of them.
type Store interface {
	Users() UserRepository
	Books() BookRepository
	Swaps() SwapRepository
	// WithinTx runs fn against a transactional view of the store. Changes made
	// through that view are committed when fn returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
