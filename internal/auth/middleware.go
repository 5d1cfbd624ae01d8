package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/policy"
	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const sessionContextKey contextKey = "session"

// Session is the verified credential attached to a request.
type Session struct {
	Claims *models.TokenClaims
	Token  string
	// FromCookie is set when the token came from the session cookie rather
	// than the Authorization header. Such requests are subject to CSRF checks.
	FromCookie bool
}

func (s *Session) Identity() *models.Identity {
	if s == nil {
		return nil
	}
	return models.IdentityFromClaims(s.Claims)
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext returns the request's session, or nil when unauthenticated.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey).(*Session)
	return s
}

// IdentityFromContext returns the caller identity, or nil when unauthenticated.
func IdentityFromContext(ctx context.Context) *models.Identity {
	return SessionFromContext(ctx).Identity()
}

var (
	errNoCredentials  = errors.New("missing credentials")
	errBadCredentials = errors.New("invalid or expired token")
	errRevoked        = errors.New("token has been revoked")
)

// Authenticator resolves bearer tokens and session cookies into a Session.
type Authenticator struct {
	tokens  *TokenManager
	revoker TokenRevoker
	logger  *slog.Logger
}

func NewAuthenticator(tokens *TokenManager, revoker TokenRevoker, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, revoker: revoker, logger: logger}
}

func (a *Authenticator) authenticate(r *http.Request) (*Session, error) {
	session := &Session{}

	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return nil, errBadCredentials
		}
		session.Token = strings.TrimSpace(token)
	} else if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		session.Token = cookie.Value
		session.FromCookie = true
	} else {
		return nil, errNoCredentials
	}

	claims, err := a.tokens.Validate(session.Token)
	if err != nil {
		return nil, errBadCredentials
	}
	session.Claims = claims

	if a.revoker != nil {
		revoked, err := a.revoker.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, errRevoked
		}
	}

	return session, nil
}

// Require rejects requests without a valid, unrevoked session.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := a.authenticate(r)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		case errors.Is(err, errNoCredentials):
			pkghttp.WriteUnauthorized(w, "Authentication required")
		case errors.Is(err, errBadCredentials), errors.Is(err, errRevoked):
			pkghttp.WriteUnauthorized(w, "Invalid or expired session")
		default:
			// Revocation status unknown: fail closed
			a.logger.Error("token revocation check failed", slog.String("error", err.Error()))
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "Unable to verify session")
		}
	})
}

// Optional attaches a session when the request carries a valid one and
// otherwise serves the request anonymously.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session, err := a.authenticate(r); err == nil {
			r = r.WithContext(WithSession(r.Context(), session))
		}
		next.ServeHTTP(w, r)
	})
}

// UserFetcher loads the current account behind a session.
type UserFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// RequireAdmin admits admins only. The role is read fresh from the store so
// role changes take effect before the token expires. Must run after Require.
func RequireAdmin(users UserFetcher, p *policy.Policy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			user, err := users.GetByID(r.Context(), session.Claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "User not found")
					return
				}
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}

			if !p.IsAdmin(&models.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}) {
				pkghttp.WriteForbidden(w, "Admin only")
				return
			}

			// Downstream checks see the current role, not the one in the token
			claims := *session.Claims
			claims.Role = user.Role
			claims.Email = user.Email
			fresh := *session
			fresh.Claims = &claims

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), &fresh)))
		})
	}
}
