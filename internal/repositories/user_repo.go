package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/bookswap/internal/database"
	"github.com/BradenHooton/bookswap/internal/models"
)

const userColumns = `id, email, password_hash, name, role, failed_login_attempts, locked_until, created_at, updated_at`

type userRepo struct {
	conn DBTX
}

// scanUserRow populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var lockedUntil *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Role,
		&user.FailedLoginAttempts, &lockedUntil,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	user.LockedUntil = lockedUntil

	return &user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.conn.QueryRow(ctx, query, id))
}

func (r *userRepo) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUserRow(r.conn.QueryRow(ctx, query, id))
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUserRow(r.conn.QueryRow(ctx, query, strings.TrimSpace(email)))
}

func (r *userRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + userColumns

	return scanUserRow(r.conn.QueryRow(ctx, query,
		user.ID, strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash, user.Name, user.Role, now,
	))
}

func (r *userRepo) UpdateLockout(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	query := `
		UPDATE users SET failed_login_attempts = $1, locked_until = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.conn.Exec(ctx, query, failedAttempts, lockedUntil, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *userRepo) UpdateRole(ctx context.Context, id, role string) error {
	result, err := r.conn.Exec(ctx, `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`, role, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *userRepo) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE locked_until IS NOT NULL AND locked_until <= $1
	`
	result, err := r.conn.Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
