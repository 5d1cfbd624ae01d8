package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/bookswap/internal/models"
)

type swapRepo struct {
	s *Store
}

func (r *swapRepo) Create(ctx context.Context, swap *models.SwapRequest) (*models.SwapRequest, error) {
	var out *models.SwapRequest
	err := r.s.write(func(d *dataset) error {
		if _, ok := d.books[swap.TargetBookID]; !ok {
			return models.ErrValidation
		}
		if _, ok := d.books[swap.OfferedBookID]; !ok {
			return models.ErrValidation
		}

		sw := *swap
		if sw.ID == "" {
			sw.ID = uuid.New().String()
		}
		if sw.Status == "" {
			sw.Status = models.SwapStatusPending
		}
		now := time.Now().UTC()
		sw.CreatedAt = now
		sw.UpdatedAt = now
		sw.ResolvedAt = nil

		d.swaps[sw.ID] = sw
		d.track(sw.ID)
		out = &sw
		return nil
	})
	return out, err
}

func (r *swapRepo) GetByID(ctx context.Context, id string) (*models.SwapRequest, error) {
	var out *models.SwapRequest
	err := r.s.read(func(d *dataset) error {
		sw, ok := d.swaps[id]
		if !ok {
			return models.ErrNotFound
		}
		out = &sw
		return nil
	})
	return out, err
}

func (r *swapRepo) GetForUpdate(ctx context.Context, id string) (*models.SwapRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *swapRepo) ExistsPending(ctx context.Context, requesterID, targetBookID string) (bool, error) {
	var exists bool
	err := r.s.read(func(d *dataset) error {
		for _, sw := range d.swaps {
			if sw.IsPending() && sw.RequesterID == requesterID && sw.TargetBookID == targetBookID {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

func (r *swapRepo) UpdateStatus(ctx context.Context, id, status string, resolvedAt time.Time) error {
	return r.s.write(func(d *dataset) error {
		sw, ok := d.swaps[id]
		if !ok {
			return models.ErrNotFound
		}
		at := resolvedAt
		sw.Status = status
		sw.ResolvedAt = &at
		sw.UpdatedAt = resolvedAt
		d.swaps[id] = sw
		return nil
	})
}

func (r *swapRepo) RejectPendingForBooks(ctx context.Context, bookIDs []string, excludeID string, at time.Time) ([]*models.SwapRequest, error) {
	rejected := make([]*models.SwapRequest, 0)
	err := r.s.write(func(d *dataset) error {
		for id, sw := range d.swaps {
			if id == excludeID || !sw.IsPending() || !referencesAny(&sw, bookIDs) {
				continue
			}
			resolvedAt := at
			sw.Status = models.SwapStatusRejected
			sw.ResolvedAt = &resolvedAt
			sw.UpdatedAt = at
			d.swaps[id] = sw

			out := sw
			rejected = append(rejected, &out)
		}
		return nil
	})
	return rejected, err
}

func (r *swapRepo) ListByRequester(ctx context.Context, userID string) ([]*models.SwapDetail, error) {
	return r.list(func(sw *models.SwapRequest) bool { return sw.RequesterID == userID })
}

func (r *swapRepo) ListByOwner(ctx context.Context, userID string) ([]*models.SwapDetail, error) {
	return r.list(func(sw *models.SwapRequest) bool { return sw.OwnerID == userID })
}

func (r *swapRepo) list(match func(*models.SwapRequest) bool) ([]*models.SwapDetail, error) {
	out := make([]*models.SwapDetail, 0)
	err := r.s.read(func(d *dataset) error {
		ids := make([]string, 0)
		for id, sw := range d.swaps {
			if match(&sw) {
				ids = append(ids, id)
			}
		}
		d.newestFirst(ids, func(id string) int64 { return d.swaps[id].CreatedAt.UnixNano() })

		for _, id := range ids {
			detail := &models.SwapDetail{SwapRequest: d.swaps[id]}
			if b, ok := d.books[detail.TargetBookID]; ok {
				detail.TargetBook = &b
			}
			if b, ok := d.books[detail.OfferedBookID]; ok {
				detail.OfferedBook = &b
			}
			out = append(out, detail)
		}
		return nil
	})
	return out, err
}

func referencesAny(sw *models.SwapRequest, bookIDs []string) bool {
	for _, id := range bookIDs {
		if sw.References(id) {
			return true
		}
	}
	return false
}
