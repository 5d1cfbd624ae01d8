package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/metrics"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/repositories"
	pkgauth "github.com/BradenHooton/bookswap/pkg/auth"
	pkglogger "github.com/BradenHooton/bookswap/pkg/logger"
)

var errInvalidLogin = &models.DomainError{Kind: models.ErrUnauthorized, Message: "invalid email or password"}

// AuthResult is a freshly issued session.
type AuthResult struct {
	Token  string
	Claims *models.TokenClaims
	User   *models.User
}

// AuthService handles registration, login with lockout, and logout.
type AuthService struct {
	store       repositories.Store
	hasher      *pkgauth.PasswordHasher
	tokens      *auth.TokenManager
	revoker     auth.TokenRevoker
	lockout     LockoutPolicy
	validate    *validator.Validate
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewAuthService creates a new AuthService. revoker and m may be nil.
func NewAuthService(
	store repositories.Store,
	hasher *pkgauth.PasswordHasher,
	tokens *auth.TokenManager,
	revoker auth.TokenRevoker,
	lockout LockoutPolicy,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *AuthService {
	return &AuthService{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		revoker:     revoker,
		lockout:     lockout,
		validate:    validator.New(),
		logger:      logger,
		auditLogger: auditLogger,
		metrics:     m,
		now:         time.Now,
	}
}

// Register creates a user account and signs it in.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	user, err := s.CreateUser(ctx, email, password, name, models.RoleUser)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "register",
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})
	if s.metrics != nil {
		s.metrics.Registrations.Inc()
	}

	return s.issue(user)
}

// CreateUser validates and stores a new account with the given role.
// Name defaults to the local part of the email.
func (s *AuthService) CreateUser(ctx context.Context, email, password, name, role string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if email == "" {
		return nil, models.NewValidationError("email is required")
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return nil, models.NewValidationError("email is invalid")
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.NewValidationError("%s", err.Error())
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, models.NewValidationError("role must be user or admin")
	}
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.store.Users().Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hashed,
		Name:         name,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration failed: email already registered")
			return nil, models.NewConflictError("email already registered")
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user created", slog.String("user_id", user.ID), slog.String("role", user.Role))
	return user, nil
}

// Login authenticates by email and password and enforces the lockout policy.
//
// A locked account is rejected without looking at the password. Otherwise the
// password is compared outside the transaction and the outcome is applied to
// the freshly locked user row, so concurrent failures are all counted.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errInvalidLogin
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.CompareDummy(password)
			s.recordLogin("unknown_user")
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				Email:         email,
				FailureReason: "invalid_credentials",
				Success:       false,
			})
			return nil, errInvalidLogin
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.lockout.CheckLocked(user, s.now()); err != nil {
		return nil, s.lockedOut(user, err)
	}
	matched := s.hasher.Compare(user.PasswordHash, password)

	var outcome error
	err = s.store.WithinTx(ctx, func(tx repositories.Store) error {
		u, err := tx.Users().GetForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}

		now := s.now()
		s.lockout.ClearExpired(u, now)
		if err := s.lockout.CheckLocked(u, now); err != nil {
			// Locked by a concurrent attempt since the first read
			outcome = err
			return nil
		}

		if matched {
			s.lockout.RecordSuccess(u)
		} else {
			outcome = s.lockout.RecordFailure(u, now)
		}
		user = u
		return tx.Users().UpdateLockout(ctx, u.ID, u.FailedLoginAttempts, u.LockedUntil)
	})
	if err != nil {
		s.logger.Error("failed to update login state", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if outcome != nil {
		var locked *models.LockedError
		if errors.As(outcome, &locked) {
			if !matched && user.LockedUntil != nil {
				s.auditLogger.LogLockout(user.ID, *user.LockedUntil)
				if s.metrics != nil {
					s.metrics.AccountLockouts.Inc()
				}
			}
			return nil, s.lockedOut(user, outcome)
		}

		s.recordLogin("invalid_credentials")
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return nil, outcome
	}

	s.recordLogin("success")
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		Success:   true,
	})
	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	return s.issue(user)
}

func (s *AuthService) lockedOut(user *models.User, err error) error {
	s.recordLogin("locked")
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        user.ID,
		FailureReason: "account_locked",
		Success:       false,
	})
	return err
}

func (s *AuthService) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(outcome)
	}
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, claims, err := s.tokens.Generate(user)
	if err != nil {
		s.logger.Error("failed to generate session token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return &AuthResult{Token: token, Claims: claims, User: user}, nil
}

// Me returns the caller's current profile.
func (s *AuthService) Me(ctx context.Context, identity *models.Identity) (*models.User, error) {
	if identity == nil {
		return nil, models.ErrUnauthorized
	}
	user, err := s.store.Users().GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user", slog.String("user_id", identity.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

// Logout revokes the session token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if claims == nil {
		return models.ErrUnauthorized
	}
	if s.revoker != nil {
		if err := s.revoker.Revoke(ctx, claims.ID, s.tokens.RemainingLifetime(claims)); err != nil {
			s.logger.Error("failed to revoke token", slog.String("user_id", claims.UserID), slog.Any("error", err))
			return models.ErrInternalServer
		}
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "logout",
		UserID:    claims.UserID,
		Success:   true,
	})
	return nil
}

// Unlock clears the lockout state of the account registered under email.
func (s *AuthService) Unlock(ctx context.Context, email string) (*models.User, error) {
	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().UpdateLockout(ctx, user.ID, 0, nil); err != nil {
		return nil, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	return user, nil
}

// Promote grants the admin role to the account registered under email.
func (s *AuthService) Promote(ctx context.Context, email string) (*models.User, error) {
	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().UpdateRole(ctx, user.ID, models.RoleAdmin); err != nil {
		return nil, err
	}
	user.Role = models.RoleAdmin
	return user, nil
}

// EnsureAdmin creates an admin account for email unless one exists, and
// promotes an existing account otherwise.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.Users().GetByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Role == models.RoleAdmin {
			return user, nil
		}
		return s.Promote(ctx, email)
	case errors.Is(err, models.ErrNotFound):
		return s.CreateUser(ctx, email, password, "", models.RoleAdmin)
	default:
		return nil, err
	}
}
