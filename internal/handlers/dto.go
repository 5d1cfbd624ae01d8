package handlers

import (
	"time"

	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/storage"
)

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// BookResponse represents a book in the HTTP response. Image is the stored
// reference; ImageURL is that reference resolved against the public base URL.
type BookResponse struct {
	ID          string    `json:"id"`
	PublicID    string    `json:"publicId"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	Image       *string   `json:"image"`
	ImageURL    *string   `json:"imageUrl"`
	OwnerID     string    `json:"ownerId"`
	OwnerEmail  string    `json:"ownerEmail"`
	Status      string    `json:"status"`
	Approval    string    `json:"approval"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// bookPresenter renders books with absolute image URLs.
type bookPresenter struct {
	publicBaseURL string
}

func (p bookPresenter) book(b *models.Book) *BookResponse {
	if b == nil {
		return nil
	}
	return &BookResponse{
		ID:          b.ID,
		PublicID:    b.PublicID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Image:       b.Image,
		ImageURL:    storage.PublicURL(p.publicBaseURL, b.Image),
		OwnerID:     b.OwnerID,
		OwnerEmail:  b.OwnerEmail,
		Status:      b.Status,
		Approval:    b.Approval,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func (p bookPresenter) books(bs []*models.Book) []*BookResponse {
	out := make([]*BookResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, p.book(b))
	}
	return out
}

// SwapResponse represents a swap request in the HTTP response. Book IDs are
// null once the referenced book has been deleted.
type SwapResponse struct {
	ID             string        `json:"id"`
	TargetBookID   *string       `json:"targetBookId"`
	OfferedBookID  *string       `json:"offeredBookId"`
	RequesterID    string        `json:"requesterId"`
	RequesterEmail string        `json:"requesterEmail"`
	OwnerID        string        `json:"ownerId"`
	OwnerEmail     string        `json:"ownerEmail"`
	Message        string        `json:"message"`
	Status         string        `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	ResolvedAt     *time.Time    `json:"resolvedAt"`
	TargetBook     *BookResponse `json:"targetBook,omitempty"`
	OfferedBook    *BookResponse `json:"offeredBook,omitempty"`
}

func (p bookPresenter) swap(s *models.SwapRequest) *SwapResponse {
	return &SwapResponse{
		ID:             s.ID,
		TargetBookID:   optional(s.TargetBookID),
		OfferedBookID:  optional(s.OfferedBookID),
		RequesterID:    s.RequesterID,
		RequesterEmail: s.RequesterEmail,
		OwnerID:        s.OwnerID,
		OwnerEmail:     s.OwnerEmail,
		Message:        s.Message,
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		ResolvedAt:     s.ResolvedAt,
	}
}

func (p bookPresenter) swapDetails(ds []*models.SwapDetail) []*SwapResponse {
	out := make([]*SwapResponse, 0, len(ds))
	for _, d := range ds {
		resp := p.swap(&d.SwapRequest)
		resp.TargetBook = p.book(d.TargetBook)
		resp.OfferedBook = p.book(d.OfferedBook)
		out = append(out, resp)
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
