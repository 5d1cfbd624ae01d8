package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BradenHooton/bookswap/internal/database"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	db   *database.DB
	conn DBTX
	inTx bool
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db, conn: db.Pool}
}

func (s *PostgresStore) Users() UserRepository {
	return &userRepo{conn: s.conn}
}

func (s *PostgresStore) Books() BookRepository {
	return &bookRepo{conn: s.conn}
}

func (s *PostgresStore) Swaps() SwapRepository {
	return &swapRepo{conn: s.conn}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&PostgresStore{db: s.db, conn: tx, inTx: true})
	})
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...any) error
}
