package models

import "time"

// Book availability, controlled by the owner and by swap outcomes.
const (
	BookStatusAvailable = "available"
	BookStatusSwapped   = "swapped"
)

// Book moderation state, controlled by administrators.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Book is a listing owned by exactly one user.
//
// OwnerID is the canonical ownership reference. OwnerEmail is denormalized at
// creation for display and is never used for authorization.
type Book struct {
	ID          string
	PublicID    string // Human-readable code, e.g. "BK-3F7A2C". Immutable.
	Title       string
	Author      string
	Description string
	Image       *string // Normalized relative path ("/uploads/x.jpg") or absolute URL
	OwnerID     string
	OwnerEmail  string
	Status      string
	Approval    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Swappable reports whether the book may be offered or requested in a swap.
func (b *Book) Swappable() bool {
	return b.Approval == ApprovalApproved && b.Status == BookStatusAvailable
}

// BookPatch carries the optional fields of a catalog update. Nil fields are left untouched.
type BookPatch struct {
	Title       *string
	Author      *string
	Description *string
	Status      *string
	Image       *string
}

// BookFilter selects books for listing queries.
type BookFilter struct {
	OwnerID  string // Empty means any owner
	Approval string // Empty means any approval state
	Status   string // Empty means any status
	Query    string // Case-insensitive substring of title or author
}

// ValidBookStatus reports whether s is a known book status.
func ValidBookStatus(s string) bool {
	return s == BookStatusAvailable || s == BookStatusSwapped
}

// ValidApproval reports whether s is a known approval state.
func ValidApproval(s string) bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}
