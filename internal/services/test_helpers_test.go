package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/policy"
	"github.com/BradenHooton/bookswap/internal/repositories"
	"github.com/BradenHooton/bookswap/internal/repositories/memory"
	pkgauth "github.com/BradenHooton/bookswap/pkg/auth"
	pkglogger "github.com/BradenHooton/bookswap/pkg/logger"
)

const testPassword = "Sw4p-Books!"

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	mu                sync.Mutex
	Requested         []*models.SwapRequest
	Resolved          []*models.SwapRequest
	SwapRequestedFunc func(ctx context.Context, swap *models.SwapRequest, target, offered *models.Book) error
	SwapResolvedFunc  func(ctx context.Context, swap *models.SwapRequest) error
}

func (m *MockNotifier) SwapRequested(ctx context.Context, swap *models.SwapRequest, target, offered *models.Book) error {
	m.mu.Lock()
	m.Requested = append(m.Requested, swap)
	m.mu.Unlock()
	if m.SwapRequestedFunc != nil {
		return m.SwapRequestedFunc(ctx, swap, target, offered)
	}
	return nil
}

func (m *MockNotifier) SwapResolved(ctx context.Context, swap *models.SwapRequest) error {
	m.mu.Lock()
	m.Resolved = append(m.Resolved, swap)
	m.mu.Unlock()
	if m.SwapResolvedFunc != nil {
		return m.SwapResolvedFunc(ctx, swap)
	}
	return nil
}

// MockImageStore implements storage.ImageStore for testing
type MockImageStore struct {
	PutFunc     func(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)
	ReleaseFunc func(ctx context.Context, ref string) error
	Released    []string
}

func (m *MockImageStore) Put(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, r, size, contentType)
	}
	return "/uploads/stored.jpg", nil
}

func (m *MockImageStore) Release(ctx context.Context, ref string) error {
	m.Released = append(m.Released, ref)
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, ref)
	}
	return nil
}

// MockSwapRepository wraps a real SwapRepository and overrides selected methods.
type MockSwapRepository struct {
	repositories.SwapRepository
	CreateFunc                func(ctx context.Context, swap *models.SwapRequest) (*models.SwapRequest, error)
	GetForUpdateFunc          func(ctx context.Context, id string) (*models.SwapRequest, error)
	RejectPendingForBooksFunc func(ctx context.Context, bookIDs []string, excludeID string, at time.Time) ([]*models.SwapRequest, error)
}

func (m *MockSwapRepository) Create(ctx context.Context, swap *models.SwapRequest) (*models.SwapRequest, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, swap)
	}
	return m.SwapRepository.Create(ctx, swap)
}

func (m *MockSwapRepository) GetForUpdate(ctx context.Context, id string) (*models.SwapRequest, error) {
	if m.GetForUpdateFunc != nil {
		return m.GetForUpdateFunc(ctx, id)
	}
	return m.SwapRepository.GetForUpdate(ctx, id)
}

func (m *MockSwapRepository) RejectPendingForBooks(ctx context.Context, bookIDs []string, excludeID string, at time.Time) ([]*models.SwapRequest, error) {
	if m.RejectPendingForBooksFunc != nil {
		return m.RejectPendingForBooksFunc(ctx, bookIDs, excludeID, at)
	}
	return m.SwapRepository.RejectPendingForBooks(ctx, bookIDs, excludeID, at)
}

// MockBookRepository wraps a real BookRepository and overrides selected methods.
type MockBookRepository struct {
	repositories.BookRepository
	GetForUpdateFunc func(ctx context.Context, id string) (*models.Book, error)
}

func (m *MockBookRepository) GetForUpdate(ctx context.Context, id string) (*models.Book, error) {
	if m.GetForUpdateFunc != nil {
		return m.GetForUpdateFunc(ctx, id)
	}
	return m.BookRepository.GetForUpdate(ctx, id)
}

// faultStore injects wrapped repositories into a store and its transactions.
// A nil wrapper leaves that repository untouched.
type faultStore struct {
	repositories.Store
	wrap      func(repositories.SwapRepository) repositories.SwapRepository
	wrapBooks func(repositories.BookRepository) repositories.BookRepository
}

func (f *faultStore) Swaps() repositories.SwapRepository {
	if f.wrap == nil {
		return f.Store.Swaps()
	}
	return f.wrap(f.Store.Swaps())
}

func (f *faultStore) Books() repositories.BookRepository {
	if f.wrapBooks == nil {
		return f.Store.Books()
	}
	return f.wrapBooks(f.Store.Books())
}

func (f *faultStore) WithinTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx repositories.Store) error {
		return fn(&faultStore{Store: tx, wrap: f.wrap, wrapBooks: f.wrapBooks})
	})
}

// lockRecorder wraps a store and records the order rows are locked in, as
// "book:<id>" and "swap:<id>".
type lockRecorder struct {
	mu    sync.Mutex
	locks []string
}

func (l *lockRecorder) record(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks = append(l.locks, entry)
}

func (l *lockRecorder) Locks() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.locks...)
}

func (l *lockRecorder) Store(inner repositories.Store) repositories.Store {
	return &faultStore{
		Store: inner,
		wrap: func(r repositories.SwapRepository) repositories.SwapRepository {
			return &MockSwapRepository{
				SwapRepository: r,
				GetForUpdateFunc: func(ctx context.Context, id string) (*models.SwapRequest, error) {
					l.record("swap:" + id)
					return r.GetForUpdate(ctx, id)
				},
			}
		},
		wrapBooks: func(r repositories.BookRepository) repositories.BookRepository {
			return &MockBookRepository{
				BookRepository: r,
				GetForUpdateFunc: func(ctx context.Context, id string) (*models.Book, error) {
					l.record("book:" + id)
					return r.GetForUpdate(ctx, id)
				},
			}
		},
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires the services against a fresh in-memory store.
type testEnv struct {
	store      *memory.Store
	policy     *policy.Policy
	notifier   *MockNotifier
	images     *MockImageStore
	auth       *AuthService
	books      *BookService
	swaps      *SwapService
	moderation *ModerationService
	revoker    *auth.MemoryTokenRevoker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.NewStore())
}

func newTestEnvWithStore(t *testing.T, store *memory.Store) *testEnv {
	t.Helper()
	logger := newTestLogger()
	audit := pkglogger.NewAuditLogger(logger)
	p := policy.New([]string{"moderator@example.com"})
	notifier := &MockNotifier{}
	images := &MockImageStore{}
	revoker := auth.NewMemoryTokenRevoker()
	tokens := auth.NewTokenManager("test-secret-32-characters-long!!", 7*24*time.Hour)

	env := &testEnv{
		store:    store,
		policy:   p,
		notifier: notifier,
		images:   images,
		revoker:  revoker,
	}
	env.auth = NewAuthService(store, pkgauth.NewPasswordHasher(bcrypt.MinCost), tokens, revoker,
		NewLockoutPolicy(3, time.Hour), logger, audit, nil)
	env.books = NewBookService(store, images, p, notifier, logger, audit, nil)
	env.swaps = NewSwapService(store, p, notifier, logger, audit, nil)
	env.moderation = NewModerationService(store, env.books, p, logger, audit, nil)
	return env
}

// NewTestUser stores a user and returns the identity it signs in with.
func (e *testEnv) NewTestUser(t *testing.T, email, role string) *models.Identity {
	t.Helper()
	u, err := e.auth.CreateUser(context.Background(), email, testPassword, "", role)
	require.NoError(t, err)
	return &models.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// NewTestBook stores a book for owner with the given approval state.
func (e *testEnv) NewTestBook(t *testing.T, owner *models.Identity, title, approval string) *models.Book {
	t.Helper()
	ctx := context.Background()
	b, err := e.books.Create(ctx, owner, CreateBookInput{Title: title, Author: "Author of " + title})
	require.NoError(t, err)
	if approval != models.ApprovalPending {
		b, err = e.store.Books().UpdateApproval(ctx, b.ID, approval)
		require.NoError(t, err)
	}
	return b
}

func (e *testEnv) book(t *testing.T, id string) *models.Book {
	t.Helper()
	b, err := e.store.Books().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (e *testEnv) swap(t *testing.T, id string) *models.SwapRequest {
	t.Helper()
	s, err := e.store.Swaps().GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

func strPtr(s string) *string { return &s }
