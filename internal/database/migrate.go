package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/BradenHooton/bookswap/migrations"
)

// Migrate applies every pending embedded migration.
func (db *DB) Migrate(ctx context.Context) error {
	return db.runGoose(ctx, func(ctx context.Context, p *goose.Provider) error {
		results, err := p.Up(ctx)
		for _, r := range results {
			db.logger.Info("migration applied",
				slog.Int64("version", r.Source.Version),
				slog.Duration("duration", r.Duration),
			)
		}
		return err
	})
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	return db.runGoose(ctx, func(ctx context.Context, p *goose.Provider) error {
		r, err := p.Down(ctx)
		if r != nil {
			db.logger.Info("migration rolled back", slog.Int64("version", r.Source.Version))
		}
		return err
	})
}

// MigrationStatus describes one embedded migration.
type MigrationStatus struct {
	Version int64
	Applied bool
}

// MigrationStatuses reports the applied state of every embedded migration.
func (db *DB) MigrationStatuses(ctx context.Context) ([]MigrationStatus, error) {
	var out []MigrationStatus
	err := db.runGoose(ctx, func(ctx context.Context, p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			out = append(out, MigrationStatus{
				Version: s.Source.Version,
				Applied: s.State == goose.StateApplied,
			})
		}
		return nil
	})
	return out, err
}

func (db *DB) runGoose(ctx context.Context, fn func(context.Context, *goose.Provider) error) error {
	// Goose needs a database/sql handle; reuse the pool's connections through the pgx adapter
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	if err := fn(ctx, provider); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
