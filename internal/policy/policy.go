// Package policy holds the authorization predicates shared by the services
// and the HTTP middleware.
package policy

import (
	"strings"

	"github.com/BradenHooton/bookswap/internal/models"
)

// Policy decides who may act on books and swap requests.
type Policy struct {
	adminEmails map[string]struct{}
}

// New builds a Policy. Identities whose email appears in adminEmails are
// treated as admins regardless of their stored role.
func New(adminEmails []string) *Policy {
	p := &Policy{adminEmails: make(map[string]struct{}, len(adminEmails))}
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			p.adminEmails[e] = struct{}{}
		}
	}
	return p
}

func (p *Policy) IsAdmin(id *models.Identity) bool {
	if id == nil {
		return false
	}
	if id.Role == models.RoleAdmin {
		return true
	}
	_, ok := p.adminEmails[strings.ToLower(id.Email)]
	return ok
}

// Owns reports whether id is the owner of book.
func Owns(id *models.Identity, book *models.Book) bool {
	return id != nil && book != nil && id.UserID != "" && id.UserID == book.OwnerID
}

// CanViewBook allows anyone to see approved books; other books are visible to
// their owner and admins only.
func (p *Policy) CanViewBook(id *models.Identity, book *models.Book) bool {
	if book.Approval == models.ApprovalApproved {
		return true
	}
	return Owns(id, book) || p.IsAdmin(id)
}

func (p *Policy) CanModifyBook(id *models.Identity, book *models.Book) bool {
	return Owns(id, book) || p.IsAdmin(id)
}

// CanResolveSwap reports whether id may apply action to swap.
// Cancellation belongs to the requester; approval and rejection to the
// target book's owner or an admin.
func (p *Policy) CanResolveSwap(id *models.Identity, swap *models.SwapRequest, action string) bool {
	if id == nil || swap == nil {
		return false
	}
	switch action {
	case models.SwapActionCancel:
		return id.UserID == swap.RequesterID
	case models.SwapActionApprove, models.SwapActionReject:
		return id.UserID == swap.OwnerID || p.IsAdmin(id)
	}
	return false
}
