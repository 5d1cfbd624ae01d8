package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/bookswap/internal/repositories"
)

// LockSweeper periodically resets accounts whose login lock has expired.
// Login already treats an expired lock as open; sweeping keeps the stored
// counters honest for admin listings and the CLI.
type LockSweeper struct {
	users    repositories.UserRepository
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

func NewLockSweeper(users repositories.UserRepository, logger *slog.Logger, interval time.Duration) *LockSweeper {
	return &LockSweeper{
		users:    users,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a sweep immediately and then once per interval until Stop is
// called or ctx is cancelled.
func (s *LockSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopCh:
			s.logger.Info("lock sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("lock sweeper context cancelled")
			return
		}
	}
}

func (s *LockSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cleared, err := s.users.ClearExpiredLocks(sweepCtx, s.now())
	if err != nil {
		s.logger.Error("failed to clear expired lockouts", slog.Any("error", err))
		return
	}

	if cleared > 0 {
		s.logger.Info("expired lockouts cleared", slog.Int64("accounts", cleared))
	}
}

// Stop signals the sweeper to stop. It must be called at most once.
func (s *LockSweeper) Stop() {
	close(s.stopCh)
}
