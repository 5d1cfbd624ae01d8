package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/bookswap/internal/models"
)

type userRepo struct {
	s *Store
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := r.s.read(func(d *dataset) error {
		u, ok := d.users[id]
		if !ok {
			return models.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: a transaction already holds the store lock.
func (r *userRepo) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var out *models.User
	err := r.s.read(func(d *dataset) error {
		id, ok := d.emails[normalizeEmail(email)]
		if !ok {
			return models.ErrNotFound
		}
		u := d.users[id]
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	var out *models.User
	err := r.s.write(func(d *dataset) error {
		email := normalizeEmail(user.Email)
		if _, exists := d.emails[email]; exists {
			return models.ErrConflict
		}

		u := *user
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		if u.Role == "" {
			u.Role = models.RoleUser
		}
		u.Email = email
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		now := time.Now().UTC()
		u.CreatedAt = now
		u.UpdatedAt = now

		d.users[u.ID] = u
		d.emails[email] = u.ID
		d.track(u.ID)
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) UpdateLockout(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	return r.s.write(func(d *dataset) error {
		u, ok := d.users[id]
		if !ok {
			return models.ErrNotFound
		}
		u.FailedLoginAttempts = failedAttempts
		if lockedUntil != nil {
			t := *lockedUntil
			u.LockedUntil = &t
		} else {
			u.LockedUntil = nil
		}
		u.UpdatedAt = time.Now().UTC()
		d.users[id] = u
		return nil
	})
}

func (r *userRepo) UpdateRole(ctx context.Context, id, role string) error {
	return r.s.write(func(d *dataset) error {
		u, ok := d.users[id]
		if !ok {
			return models.ErrNotFound
		}
		u.Role = role
		u.UpdatedAt = time.Now().UTC()
		d.users[id] = u
		return nil
	})
}

func (r *userRepo) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	var cleared int64
	err := r.s.write(func(d *dataset) error {
		for id, u := range d.users {
			if u.LockedUntil == nil || u.LockedUntil.After(now) {
				continue
			}
			u.FailedLoginAttempts = 0
			u.LockedUntil = nil
			u.UpdatedAt = time.Now().UTC()
			d.users[id] = u
			cleared++
		}
		return nil
	})
	return cleared, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
