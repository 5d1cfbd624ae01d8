package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/bookswap/internal/models"
)

type bookRepo struct {
	s *Store
}

func (r *bookRepo) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	var out *models.Book
	err := r.s.write(func(d *dataset) error {
		for _, existing := range d.books {
			if existing.PublicID == book.PublicID {
				return models.ErrConflict
			}
		}
		if _, ok := d.users[book.OwnerID]; !ok {
			return models.ErrValidation
		}

		b := *book
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		b.CreatedAt = now
		b.UpdatedAt = now

		d.books[b.ID] = b
		d.track(b.ID)
		out = &b
		return nil
	})
	return out, err
}

func (r *bookRepo) GetByID(ctx context.Context, id string) (*models.Book, error) {
	var out *models.Book
	err := r.s.read(func(d *dataset) error {
		b, ok := d.books[id]
		if !ok {
			return models.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *bookRepo) GetForUpdate(ctx context.Context, id string) (*models.Book, error) {
	return r.GetByID(ctx, id)
}

func (r *bookRepo) List(ctx context.Context, filter models.BookFilter) ([]*models.Book, error) {
	out := make([]*models.Book, 0)
	err := r.s.read(func(d *dataset) error {
		q := strings.ToLower(strings.TrimSpace(filter.Query))
		ids := make([]string, 0, len(d.books))
		for id, b := range d.books {
			if filter.OwnerID != "" && b.OwnerID != filter.OwnerID {
				continue
			}
			if filter.Approval != "" && b.Approval != filter.Approval {
				continue
			}
			if filter.Status != "" && b.Status != filter.Status {
				continue
			}
			if q != "" && !strings.Contains(strings.ToLower(b.Title), q) && !strings.Contains(strings.ToLower(b.Author), q) {
				continue
			}
			ids = append(ids, id)
		}

		d.newestFirst(ids, func(id string) int64 { return d.books[id].CreatedAt.UnixNano() })
		for _, id := range ids {
			b := d.books[id]
			out = append(out, &b)
		}
		return nil
	})
	return out, err
}

func (r *bookRepo) Update(ctx context.Context, book *models.Book) (*models.Book, error) {
	var out *models.Book
	err := r.s.write(func(d *dataset) error {
		b, ok := d.books[book.ID]
		if !ok {
			return models.ErrNotFound
		}
		b.Title = book.Title
		b.Author = book.Author
		b.Description = book.Description
		b.Image = book.Image
		b.Status = book.Status
		b.UpdatedAt = time.Now().UTC()
		d.books[b.ID] = b
		out = &b
		return nil
	})
	return out, err
}

func (r *bookRepo) UpdateStatus(ctx context.Context, ids []string, status string) error {
	return r.s.write(func(d *dataset) error {
		now := time.Now().UTC()
		for _, id := range ids {
			b, ok := d.books[id]
			if !ok {
				continue
			}
			b.Status = status
			b.UpdatedAt = now
			d.books[id] = b
		}
		return nil
	})
}

func (r *bookRepo) UpdateApproval(ctx context.Context, id, approval string) (*models.Book, error) {
	var out *models.Book
	err := r.s.write(func(d *dataset) error {
		b, ok := d.books[id]
		if !ok {
			return models.ErrNotFound
		}
		b.Approval = approval
		b.UpdatedAt = time.Now().UTC()
		d.books[id] = b
		out = &b
		return nil
	})
	return out, err
}

// Delete removes the book and clears the references swap requests hold to it.
func (r *bookRepo) Delete(ctx context.Context, id string) error {
	return r.s.write(func(d *dataset) error {
		if _, ok := d.books[id]; !ok {
			return models.ErrNotFound
		}
		delete(d.books, id)
		delete(d.seq, id)

		for sid, sw := range d.swaps {
			changed := false
			if sw.TargetBookID == id {
				sw.TargetBookID = ""
				changed = true
			}
			if sw.OfferedBookID == id {
				sw.OfferedBookID = ""
				changed = true
			}
			if changed {
				d.swaps[sid] = sw
			}
		}
		return nil
	})
}
