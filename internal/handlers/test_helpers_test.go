package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/policy"
	"github.com/BradenHooton/bookswap/internal/repositories/memory"
	"github.com/BradenHooton/bookswap/internal/services"
	"github.com/BradenHooton/bookswap/internal/storage"
	pkgauth "github.com/BradenHooton/bookswap/pkg/auth"
	pkglogger "github.com/BradenHooton/bookswap/pkg/logger"
)

const (
	testPassword = "Sw4p-Books!"
	testBaseURL  = "https://api.bookswap.test"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithIdentity attaches a verified session for identity to the request
func WithIdentity(req *http.Request, identity *models.Identity) *http.Request {
	if identity == nil {
		return req
	}
	session := &auth.Session{
		Claims: &models.TokenClaims{UserID: identity.UserID, Email: identity.Email, Role: identity.Role},
		Token:  "test-token",
	}
	return req.WithContext(auth.WithSession(req.Context(), session))
}

// WithURLParam sets a chi route parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch: %s", w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// errorBody is the failure envelope
type errorBody struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error"`
	Code         string `json:"code"`
	AttemptsLeft *int   `json:"attemptsLeft"`
	Locked       bool   `json:"locked"`
	MinutesLeft  int    `json:"minutesLeft"`
}

// AssertErrorResponse checks that response is a failure envelope with the given message
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMessage string) errorBody {
	t.Helper()
	var body errorBody
	AssertJSONResponse(t, w, expectedStatus, &body)
	assert.False(t, body.OK)
	assert.NotEmpty(t, body.Code)
	if expectedMessage != "" {
		assert.Equal(t, expectedMessage, body.Error)
	}
	return body
}

type bookBody struct {
	OK   bool         `json:"ok"`
	Book BookResponse `json:"book"`
}

type booksBody struct {
	OK    bool           `json:"ok"`
	Books []BookResponse `json:"books"`
}

type swapBody struct {
	OK   bool         `json:"ok"`
	Swap SwapResponse `json:"swap"`
}

type swapsBody struct {
	OK    bool           `json:"ok"`
	Swaps []SwapResponse `json:"swaps"`
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc func(ctx context.Context, email, password, name string) (*services.AuthResult, error)
	LoginFunc    func(ctx context.Context, email, password string) (*services.AuthResult, error)
	MeFunc       func(ctx context.Context, identity *models.Identity) (*models.User, error)
	LogoutFunc   func(ctx context.Context, claims *models.TokenClaims) error
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name string) (*services.AuthResult, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, password, name)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password)
}

func (m *MockAuthService) Me(ctx context.Context, identity *models.Identity) (*models.User, error) {
	if m.MeFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.MeFunc(ctx, identity)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, claims)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires real services and handlers over a fresh in-memory store.
type testEnv struct {
	store   *memory.Store
	images  *storage.LocalStore
	authSvc *services.AuthService
	books   *BookHandler
	swaps   *SwapHandler
	admin   *AdminHandler
	bookSvc *services.BookService
	swapSvc *services.SwapService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := newTestLogger()
	audit := pkglogger.NewAuditLogger(logger)
	store := memory.NewStore()
	p := policy.New(nil)
	images, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	notifier := services.NewLogNotifier(logger)
	tokens := auth.NewTokenManager("test-secret-32-characters-long!!", time.Hour)

	authSvc := services.NewAuthService(store, pkgauth.NewPasswordHasher(bcrypt.MinCost), tokens,
		auth.NewMemoryTokenRevoker(), services.NewLockoutPolicy(3, time.Hour), logger, audit, nil)
	bookSvc := services.NewBookService(store, images, p, notifier, logger, audit, nil)
	swapSvc := services.NewSwapService(store, p, notifier, logger, audit, nil)
	moderation := services.NewModerationService(store, bookSvc, p, logger, audit, nil)

	return &testEnv{
		store:   store,
		images:  images,
		authSvc: authSvc,
		books:   NewBookHandler(bookSvc, testBaseURL),
		swaps:   NewSwapHandler(swapSvc, testBaseURL),
		admin:   NewAdminHandler(moderation, testBaseURL),
		bookSvc: bookSvc,
		swapSvc: swapSvc,
	}
}

// NewTestUser stores a user and returns the identity it signs in with
func (e *testEnv) NewTestUser(t *testing.T, email, role string) *models.Identity {
	t.Helper()
	u, err := e.authSvc.CreateUser(context.Background(), email, testPassword, "", role)
	require.NoError(t, err)
	return &models.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// NewTestBook stores an approved, available book owned by owner
func (e *testEnv) NewTestBook(t *testing.T, owner *models.Identity, title string) *models.Book {
	t.Helper()
	ctx := context.Background()
	b, err := e.bookSvc.Create(ctx, owner, services.CreateBookInput{Title: title, Author: "Author of " + title})
	require.NoError(t, err)
	b, err = e.store.Books().UpdateApproval(ctx, b.ID, models.ApprovalApproved)
	require.NoError(t, err)
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
