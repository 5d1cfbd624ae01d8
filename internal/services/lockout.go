package services

import (
	"math"
	"time"

	"github.com/BradenHooton/bookswap/internal/models"
)

const (
	DefaultLoginLimit   = 3
	DefaultLockDuration = time.Hour
)

// LockoutPolicy decides how failed logins lock an account. It only mutates the
// user it is given; persisting the result is up to the caller.
type LockoutPolicy struct {
	Limit    int
	Duration time.Duration
}

func NewLockoutPolicy(limit int, duration time.Duration) LockoutPolicy {
	if limit < 1 {
		limit = DefaultLoginLimit
	}
	if duration <= 0 {
		duration = DefaultLockDuration
	}
	return LockoutPolicy{Limit: limit, Duration: duration}
}

// ClearExpired drops a lock that has run out and reports whether it did.
func (p LockoutPolicy) ClearExpired(u *models.User, now time.Time) bool {
	if u.LockedUntil == nil || u.LockedUntil.After(now) {
		return false
	}
	u.LockedUntil = nil
	u.FailedLoginAttempts = 0
	return true
}

// CheckLocked returns a LockedError while the account's lock is in effect.
func (p LockoutPolicy) CheckLocked(u *models.User, now time.Time) error {
	if !u.IsLocked(now) {
		return nil
	}
	return &models.LockedError{MinutesLeft: minutesUntil(*u.LockedUntil, now)}
}

// RecordFailure counts a wrong password. Reaching the limit locks the account
// and resets the counter, so the next window starts from zero.
func (p LockoutPolicy) RecordFailure(u *models.User, now time.Time) error {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= p.Limit {
		until := now.Add(p.Duration)
		u.LockedUntil = &until
		u.FailedLoginAttempts = 0
		return &models.LockedError{MinutesLeft: minutesUntil(until, now)}
	}
	return &models.InvalidCredentialsError{AttemptsLeft: p.Limit - u.FailedLoginAttempts}
}

// RecordSuccess clears all lockout state.
func (p LockoutPolicy) RecordSuccess(u *models.User) {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
}

func minutesUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Minutes()))
}
