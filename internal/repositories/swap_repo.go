package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/BradenHooton/bookswap/internal/database"
	"github.com/BradenHooton/bookswap/internal/models"
)

const swapColumns = `id, target_book_id, offered_book_id, requester_id, requester_email, owner_id, owner_email, message, status, created_at, updated_at, resolved_at`

type swapRepo struct {
	conn DBTX
}

func scanSwapRow(scanner rowScanner) (*models.SwapRequest, error) {
	var swap models.SwapRequest
	var targetID, offeredID *string

	err := scanner.Scan(
		&swap.ID, &targetID, &offeredID,
		&swap.RequesterID, &swap.RequesterEmail, &swap.OwnerID, &swap.OwnerEmail,
		&swap.Message, &swap.Status, &swap.CreatedAt, &swap.UpdatedAt, &swap.ResolvedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	swap.TargetBookID = deref(targetID)
	swap.OfferedBookID = deref(offeredID)

	return &swap, nil
}

func scanSwapRows(rows pgx.Rows) ([]*models.SwapRequest, error) {
	defer rows.Close()

	swaps := make([]*models.SwapRequest, 0)
	for rows.Next() {
		swap, err := scanSwapRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swap request: %w", err)
		}
		swaps = append(swaps, swap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return swaps, nil
}

func (r *swapRepo) Create(ctx context.Context, swap *models.SwapRequest) (*models.SwapRequest, error) {
	if swap.ID == "" {
		swap.ID = uuid.New().String()
	}
	if swap.Status == "" {
		swap.Status = models.SwapStatusPending
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO swap_requests (id, target_book_id, offered_book_id, requester_id, requester_email,
			owner_id, owner_email, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING ` + swapColumns

	return scanSwapRow(r.conn.QueryRow(ctx, query,
		swap.ID, swap.TargetBookID, swap.OfferedBookID, swap.RequesterID, swap.RequesterEmail,
		swap.OwnerID, swap.OwnerEmail, swap.Message, swap.Status, now,
	))
}

func (r *swapRepo) GetByID(ctx context.Context, id string) (*models.SwapRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	return scanSwapRow(r.conn.QueryRow(ctx, `SELECT `+swapColumns+` FROM swap_requests WHERE id = $1`, id))
}

func (r *swapRepo) GetForUpdate(ctx context.Context, id string) (*models.SwapRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	return scanSwapRow(r.conn.QueryRow(ctx, `SELECT `+swapColumns+` FROM swap_requests WHERE id = $1 FOR UPDATE`, id))
}

func (r *swapRepo) ExistsPending(ctx context.Context, requesterID, targetBookID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM swap_requests
			WHERE requester_id = $1 AND target_book_id = $2 AND status = 'pending'
		)
	`

	var exists bool
	if err := r.conn.QueryRow(ctx, query, requesterID, targetBookID).Scan(&exists); err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

func (r *swapRepo) UpdateStatus(ctx context.Context, id, status string, resolvedAt time.Time) error {
	result, err := r.conn.Exec(ctx,
		`UPDATE swap_requests SET status = $1, resolved_at = $2, updated_at = $2 WHERE id = $3`,
		status, resolvedAt, id,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *swapRepo) RejectPendingForBooks(ctx context.Context, bookIDs []string, excludeID string, at time.Time) ([]*models.SwapRequest, error) {
	if len(bookIDs) == 0 {
		return []*models.SwapRequest{}, nil
	}

	// An empty excludeID must not be compared against the uuid column
	var exclude *string
	if excludeID != "" {
		exclude = &excludeID
	}

	// Rows are locked in id order so two cascades over overlapping requests
	// cannot deadlock.
	query := `
		UPDATE swap_requests SET status = 'rejected', resolved_at = $1, updated_at = $1
		WHERE status = 'pending' AND id IN (
			SELECT id FROM swap_requests
			WHERE status = 'pending'
			  AND (target_book_id = ANY($2::uuid[]) OR offered_book_id = ANY($2::uuid[]))
			  AND ($3::uuid IS NULL OR id <> $3::uuid)
			ORDER BY id
			FOR UPDATE
		)
		RETURNING ` + swapColumns

	rows, err := r.conn.Query(ctx, query, at, bookIDs, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to reject pending swap requests: %w", err)
	}
	return scanSwapRows(rows)
}

const swapDetailQuery = `
	SELECT s.id, s.target_book_id, s.offered_book_id, s.requester_id, s.requester_email,
		s.owner_id, s.owner_email, s.message, s.status, s.created_at, s.updated_at, s.resolved_at,
		tb.id, tb.public_id, tb.title, tb.author, tb.description, tb.image, tb.owner_id, tb.owner_email,
		tb.status, tb.approval, tb.created_at, tb.updated_at,
		ob.id, ob.public_id, ob.title, ob.author, ob.description, ob.image, ob.owner_id, ob.owner_email,
		ob.status, ob.approval, ob.created_at, ob.updated_at
	FROM swap_requests s
	LEFT JOIN books tb ON tb.id = s.target_book_id
	LEFT JOIN books ob ON ob.id = s.offered_book_id
`

func (r *swapRepo) ListByRequester(ctx context.Context, userID string) ([]*models.SwapDetail, error) {
	return r.listDetails(ctx, swapDetailQuery+`WHERE s.requester_id = $1 ORDER BY s.created_at DESC, s.id DESC`, userID)
}

func (r *swapRepo) ListByOwner(ctx context.Context, userID string) ([]*models.SwapDetail, error) {
	return r.listDetails(ctx, swapDetailQuery+`WHERE s.owner_id = $1 ORDER BY s.created_at DESC, s.id DESC`, userID)
}

func (r *swapRepo) listDetails(ctx context.Context, query, userID string) ([]*models.SwapDetail, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []*models.SwapDetail{}, nil
	}

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap requests: %w", err)
	}
	defer rows.Close()

	details := make([]*models.SwapDetail, 0)
	for rows.Next() {
		var (
			d                   models.SwapDetail
			targetID, offeredID *string
			target, offered     nullableBook
		)
		dest := []any{
			&d.ID, &targetID, &offeredID,
			&d.RequesterID, &d.RequesterEmail, &d.OwnerID, &d.OwnerEmail,
			&d.Message, &d.Status, &d.CreatedAt, &d.UpdatedAt, &d.ResolvedAt,
		}
		dest = append(dest, target.dest()...)
		dest = append(dest, offered.dest()...)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan swap request: %w", err)
		}
		d.TargetBookID = deref(targetID)
		d.OfferedBookID = deref(offeredID)
		d.TargetBook = target.book()
		d.OfferedBook = offered.book()
		details = append(details, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return details, nil
}

// nullableBook receives the columns of a LEFT JOINed book.
type nullableBook struct {
	id, publicID, title, author, description, image *string
	ownerID, ownerEmail, status, approval           *string
	createdAt, updatedAt                            *time.Time
}

func (n *nullableBook) dest() []any {
	return []any{
		&n.id, &n.publicID, &n.title, &n.author, &n.description, &n.image,
		&n.ownerID, &n.ownerEmail, &n.status, &n.approval, &n.createdAt, &n.updatedAt,
	}
}

func (n *nullableBook) book() *models.Book {
	if n.id == nil {
		return nil
	}
	b := &models.Book{
		ID:          *n.id,
		PublicID:    deref(n.publicID),
		Title:       deref(n.title),
		Author:      deref(n.author),
		Description: deref(n.description),
		Image:       n.image,
		OwnerID:     deref(n.ownerID),
		OwnerEmail:  deref(n.ownerEmail),
		Status:      deref(n.status),
		Approval:    deref(n.approval),
	}
	if n.createdAt != nil {
		b.CreatedAt = *n.createdAt
	}
	if n.updatedAt != nil {
		b.UpdatedAt = *n.updatedAt
	}
	return b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
