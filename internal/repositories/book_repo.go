package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/BradenHooton/bookswap/internal/database"
	"github.com/BradenHooton/bookswap/internal/models"
)

const bookColumns = `id, public_id, title, author, description, image, owner_id, owner_email, status, approval, created_at, updated_at`

type bookRepo struct {
	conn DBTX
}

func scanBookRow(scanner rowScanner) (*models.Book, error) {
	var book models.Book
	err := scanner.Scan(
		&book.ID, &book.PublicID, &book.Title, &book.Author, &book.Description, &book.Image,
		&book.OwnerID, &book.OwnerEmail, &book.Status, &book.Approval,
		&book.CreatedAt, &book.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &book, nil
}

func scanBookRows(rows pgx.Rows) ([]*models.Book, error) {
	defer rows.Close()

	books := make([]*models.Book, 0)
	for rows.Next() {
		book, err := scanBookRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return books, nil
}

func (r *bookRepo) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	if book.ID == "" {
		book.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO books (id, public_id, title, author, description, image, owner_id, owner_email, status, approval, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING ` + bookColumns

	return scanBookRow(r.conn.QueryRow(ctx, query,
		book.ID, book.PublicID, book.Title, book.Author, book.Description, book.Image,
		book.OwnerID, book.OwnerEmail, book.Status, book.Approval, now,
	))
}

func (r *bookRepo) GetByID(ctx context.Context, id string) (*models.Book, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	return scanBookRow(r.conn.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
}

func (r *bookRepo) GetForUpdate(ctx context.Context, id string) (*models.Book, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	return scanBookRow(r.conn.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id))
}

func (r *bookRepo) List(ctx context.Context, filter models.BookFilter) ([]*models.Book, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.OwnerID != "" {
		add("owner_id = $%d", filter.OwnerID)
	}
	if filter.Approval != "" {
		add("approval = $%d", filter.Approval)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		add("(title ILIKE $%[1]d OR author ILIKE $%[1]d)", "%"+escapeLike(q)+"%")
	}

	query := `SELECT ` + bookColumns + ` FROM books`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	return scanBookRows(rows)
}

func (r *bookRepo) Update(ctx context.Context, book *models.Book) (*models.Book, error) {
	query := `
		UPDATE books SET title = $1, author = $2, description = $3, image = $4, status = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING ` + bookColumns

	return scanBookRow(r.conn.QueryRow(ctx, query,
		book.Title, book.Author, book.Description, book.Image, book.Status, book.ID,
	))
}

func (r *bookRepo) UpdateStatus(ctx context.Context, ids []string, status string) error {
	_, err := r.conn.Exec(ctx,
		`UPDATE books SET status = $1, updated_at = NOW() WHERE id = ANY($2::uuid[])`,
		status, ids,
	)
	return database.MapPostgresError(err)
}

func (r *bookRepo) UpdateApproval(ctx context.Context, id, approval string) (*models.Book, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `
		UPDATE books SET approval = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + bookColumns

	return scanBookRow(r.conn.QueryRow(ctx, query, approval, id))
}

func (r *bookRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotFound
	}
	result, err := r.conn.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// escapeLike escapes the ILIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
