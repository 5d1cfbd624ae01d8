//go:build integration

package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/bookswap/internal/database"
	"github.com/BradenHooton/bookswap/internal/models"
)

// setupPostgres starts a disposable Postgres container with the schema applied.
func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("bookswap"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := database.NewFromPool(pool, slog.Default())
	require.NoError(t, db.Migrate(ctx))

	return NewPostgresStore(db)
}

func createUser(t *testing.T, s *PostgresStore, email string) *models.User {
	t.Helper()
	u, err := s.Users().Create(context.Background(), &models.User{Email: email, PasswordHash: "hash", Name: "n"})
	require.NoError(t, err)
	return u
}

func createBook(t *testing.T, s *PostgresStore, owner *models.User, n int) *models.Book {
	t.Helper()
	b, err := s.Books().Create(context.Background(), &models.Book{
		PublicID:   fmt.Sprintf("BK-%06X", n),
		Title:      fmt.Sprintf("Book %d", n),
		Author:     "Author",
		OwnerID:    owner.ID,
		OwnerEmail: owner.Email,
		Status:     models.BookStatusAvailable,
		Approval:   models.ApprovalApproved,
	})
	require.NoError(t, err)
	return b
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := setupPostgres(t)
	ctx := context.Background()

	owner := createUser(t, s, "Owner@Example.com")
	requester := createUser(t, s, "requester@example.com")

	t.Run("email lookup ignores case and duplicates conflict", func(t *testing.T) {
		got, err := s.Users().GetByEmail(ctx, "OWNER@example.com")
		require.NoError(t, err)
		assert.Equal(t, owner.ID, got.ID)

		_, err = s.Users().Create(ctx, &models.User{Email: "owner@EXAMPLE.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("malformed ids are not found", func(t *testing.T) {
		_, err := s.Books().GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("expired locks are cleared", func(t *testing.T) {
		locked := createUser(t, s, "locked@example.com")
		past := time.Now().Add(-time.Minute)
		require.NoError(t, s.Users().UpdateLockout(ctx, locked.ID, 3, &past))

		cleared, err := s.Users().ClearExpiredLocks(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), cleared)

		got, err := s.Users().GetByID(ctx, locked.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LockedUntil)
		assert.Zero(t, got.FailedLoginAttempts)
	})

	t.Run("public id is unique", func(t *testing.T) {
		createBook(t, s, owner, 100)
		_, err := s.Books().Create(ctx, &models.Book{
			PublicID: fmt.Sprintf("BK-%06X", 100), Title: "t", Author: "a",
			OwnerID: owner.ID, OwnerEmail: owner.Email,
			Status: models.BookStatusAvailable, Approval: models.ApprovalPending,
		})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("cascade reject and delete keep swap history", func(t *testing.T) {
		rival := createUser(t, s, "rival@example.com")
		target := createBook(t, s, owner, 1)
		offeredA := createBook(t, s, requester, 2)
		offeredB := createBook(t, s, rival, 3)

		newSwap := func(from *models.User, offered *models.Book) *models.SwapRequest {
			sw, err := s.Swaps().Create(ctx, &models.SwapRequest{
				TargetBookID: target.ID, OfferedBookID: offered.ID,
				RequesterID: from.ID, RequesterEmail: from.Email,
				OwnerID: owner.ID, OwnerEmail: owner.Email,
			})
			require.NoError(t, err)
			return sw
		}
		keep := newSwap(requester, offeredA)
		sibling := newSwap(rival, offeredB)

		exists, err := s.Swaps().ExistsPending(ctx, requester.ID, target.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		rejected, err := s.Swaps().RejectPendingForBooks(ctx, []string{target.ID, offeredA.ID}, keep.ID, time.Now())
		require.NoError(t, err)
		require.Len(t, rejected, 1)
		assert.Equal(t, sibling.ID, rejected[0].ID)
		assert.Equal(t, models.SwapStatusRejected, rejected[0].Status)

		require.NoError(t, s.Books().Delete(ctx, target.ID))

		details, err := s.Swaps().ListByOwner(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, details, 2)
		assert.Equal(t, sibling.ID, details[0].ID, "newest first")
		for _, d := range details {
			assert.Empty(t, d.TargetBookID)
			assert.Nil(t, d.TargetBook)
			assert.NotNil(t, d.OfferedBook)
		}
	})

	t.Run("one pending request per requester and target", func(t *testing.T) {
		target := createBook(t, s, owner, 5)
		offered := createBook(t, s, requester, 6)
		sw := &models.SwapRequest{
			TargetBookID: target.ID, OfferedBookID: offered.ID,
			RequesterID: requester.ID, RequesterEmail: requester.Email,
			OwnerID: owner.ID, OwnerEmail: owner.Email,
		}

		first, err := s.Swaps().Create(ctx, sw)
		require.NoError(t, err)

		_, err = s.Swaps().Create(ctx, &models.SwapRequest{
			TargetBookID: target.ID, OfferedBookID: offered.ID,
			RequesterID: requester.ID, RequesterEmail: requester.Email,
			OwnerID: owner.ID, OwnerEmail: owner.Email,
		})
		assert.ErrorIs(t, err, models.ErrConflict)

		// Once resolved the pair is free again
		require.NoError(t, s.Swaps().UpdateStatus(ctx, first.ID, models.SwapStatusCancelled, time.Now()))
		_, err = s.Swaps().Create(ctx, &models.SwapRequest{
			TargetBookID: target.ID, OfferedBookID: offered.ID,
			RequesterID: requester.ID, RequesterEmail: requester.Email,
			OwnerID: owner.ID, OwnerEmail: owner.Email,
		})
		assert.NoError(t, err)
	})

	t.Run("approval waits for a request holding its book and rejects it", func(t *testing.T) {
		lender := createUser(t, s, "lender@example.com")
		borrower := createUser(t, s, "borrower@example.com")
		third := createUser(t, s, "third@example.com")
		bookX := createBook(t, s, lender, 10)
		bookY := createBook(t, s, borrower, 11)
		bookZ := createBook(t, s, third, 12)

		// third wants borrower's Y for Z; approving it takes Y off the market
		approving, err := s.Swaps().Create(ctx, &models.SwapRequest{
			TargetBookID: bookY.ID, OfferedBookID: bookZ.ID,
			RequesterID: third.ID, RequesterEmail: third.Email,
			OwnerID: borrower.ID, OwnerEmail: borrower.Email,
		})
		require.NoError(t, err)

		lockInOrder := func(tx Store, ids ...string) ([]string, error) {
			sort.Strings(ids)
			for _, id := range ids {
				if _, err := tx.Books().GetForUpdate(ctx, id); err != nil {
					return nil, err
				}
			}
			return ids, nil
		}

		locked := make(chan struct{})
		var once sync.Once
		release := func() { once.Do(func() { close(locked) }) }

		var requested *models.SwapRequest
		var wg sync.WaitGroup
		wg.Add(2)

		// Request: borrower offers Y for X, holding both book locks across the insert
		go func() {
			defer wg.Done()
			defer release()
			err := s.WithinTx(ctx, func(tx Store) error {
				if _, err := lockInOrder(tx, bookX.ID, bookY.ID); err != nil {
					return err
				}
				release()
				time.Sleep(200 * time.Millisecond)

				var err error
				requested, err = tx.Swaps().Create(ctx, &models.SwapRequest{
					TargetBookID: bookX.ID, OfferedBookID: bookY.ID,
					RequesterID: borrower.ID, RequesterEmail: borrower.Email,
					OwnerID: lender.ID, OwnerEmail: lender.Email,
				})
				return err
			})
			assert.NoError(t, err)
		}()

		// Approval of the other request, started once the request holds Y
		go func() {
			defer wg.Done()
			<-locked
			err := s.WithinTx(ctx, func(tx Store) error {
				ids, err := lockInOrder(tx, bookY.ID, bookZ.ID)
				if err != nil {
					return err
				}
				if _, err := tx.Swaps().GetForUpdate(ctx, approving.ID); err != nil {
					return err
				}
				if err := tx.Books().UpdateStatus(ctx, ids, models.BookStatusSwapped); err != nil {
					return err
				}
				if _, err := tx.Swaps().RejectPendingForBooks(ctx, ids, approving.ID, time.Now()); err != nil {
					return err
				}
				return tx.Swaps().UpdateStatus(ctx, approving.ID, models.SwapStatusApproved, time.Now())
			})
			assert.NoError(t, err)
		}()
		wg.Wait()

		require.NotNil(t, requested)
		got, err := s.Swaps().GetByID(ctx, requested.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SwapStatusRejected, got.Status, "no pending request may name a swapped book")

		y, err := s.Books().GetByID(ctx, bookY.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookStatusSwapped, y.Status)
	})

	t.Run("row locks serialize concurrent transactions", func(t *testing.T) {
		book := createBook(t, s, owner, 4)

		var wg sync.WaitGroup
		winners := make(chan struct{}, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.WithinTx(ctx, func(tx Store) error {
					b, err := tx.Books().GetForUpdate(ctx, book.ID)
					if err != nil {
						return err
					}
					if b.Status != models.BookStatusAvailable {
						return nil
					}
					if err := tx.Books().UpdateStatus(ctx, []string{book.ID}, models.BookStatusSwapped); err != nil {
						return err
					}
					winners <- struct{}{}
					return nil
				})
			}()
		}
		wg.Wait()
		close(winners)

		assert.Len(t, winners, 1)
	})
}
