package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Name                string
	Role                string // "user" or "admin"
	FailedLoginAttempts int
	LockedUntil         *time.Time // Temporary account lock expiration
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the account lock is still in effect at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
