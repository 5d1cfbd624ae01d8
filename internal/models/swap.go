package models

import "time"

const (
	SwapStatusPending   = "pending"
	SwapStatusApproved  = "approved"
	SwapStatusRejected  = "rejected"
	SwapStatusCancelled = "cancelled"
)

// Actions accepted by the swap ledger.
const (
	SwapActionApprove = "approve"
	SwapActionReject  = "reject"
	SwapActionCancel  = "cancel"
)

// SwapRequest proposes exchanging OfferedBookID (the requester's) for
// TargetBookID (the owner's). Book references become empty when the referenced
// book has been deleted.
type SwapRequest struct {
	ID             string
	TargetBookID   string
	OfferedBookID  string
	RequesterID    string
	RequesterEmail string
	OwnerID        string
	OwnerEmail     string
	Message        string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
}

// IsPending reports whether the request can still be transitioned.
func (s *SwapRequest) IsPending() bool {
	return s.Status == SwapStatusPending
}

// References reports whether the request names bookID as target or offered book.
func (s *SwapRequest) References(bookID string) bool {
	return bookID != "" && (s.TargetBookID == bookID || s.OfferedBookID == bookID)
}

// SwapDetail is a swap request joined with the books it references.
type SwapDetail struct {
	SwapRequest
	TargetBook  *Book
	OfferedBook *Book
}
