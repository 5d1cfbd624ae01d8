package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/services"
)

func TestAdminHandler_Moderation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.NewTestUser(t, "admin@example.com", models.RoleAdmin)
	owner := env.NewTestUser(t, "owner@example.com", models.RoleUser)

	pending, err := env.bookSvc.Create(t.Context(), owner, services.CreateBookInput{Title: "Needs Review", Author: "Anon"})
	require.NoError(t, err)

	listReq := func(query string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		env.admin.ListBooks(w, WithIdentity(httptest.NewRequest(http.MethodGet, "/api/admin/books"+query, nil), admin))
		return w
	}

	var list booksBody
	AssertJSONResponse(t, listReq("?approval=pending"), http.StatusOK, &list)
	require.Len(t, list.Books, 1)
	assert.Equal(t, pending.ID, list.Books[0].ID)
	AssertErrorResponse(t, listReq("?approval=maybe"), http.StatusBadRequest, "")

	approve := WithURLParam(httptest.NewRequest(http.MethodPatch, "/api/admin/books/"+pending.ID+"/approve", nil), "id", pending.ID)
	w := httptest.NewRecorder()
	env.admin.ApproveBook(w, WithIdentity(approve, admin))
	var body bookBody
	AssertJSONResponse(t, w, http.StatusOK, &body)
	assert.Equal(t, models.ApprovalApproved, body.Book.Approval)

	AssertJSONResponse(t, listReq("?approval=pending"), http.StatusOK, &list)
	assert.Empty(t, list.Books)

	reject := WithURLParam(httptest.NewRequest(http.MethodPatch, "/api/admin/books/missing/reject", nil), "id", "missing")
	w = httptest.NewRecorder()
	env.admin.RejectBook(w, WithIdentity(reject, admin))
	AssertErrorResponse(t, w, http.StatusNotFound, "book not found")
}

func TestAdminHandler_NonAdminForbidden(t *testing.T) {
	env := newTestEnv(t)
	user := env.NewTestUser(t, "user@example.com", models.RoleUser)

	w := httptest.NewRecorder()
	env.admin.ListBooks(w, WithIdentity(httptest.NewRequest(http.MethodGet, "/api/admin/books", nil), user))
	AssertErrorResponse(t, w, http.StatusForbidden, "")
}

func TestAdminHandler_DeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	admin := env.NewTestUser(t, "admin@example.com", models.RoleAdmin)
	alice := env.NewTestUser(t, "alice@example.com", models.RoleUser)
	bob := env.NewTestUser(t, "bob@example.com", models.RoleUser)
	a1 := env.NewTestBook(t, alice, "Alice One")
	b1 := env.NewTestBook(t, bob, "Bob One")

	var created swapBody
	AssertJSONResponse(t, env.requestSwap(t, bob, a1.ID, b1.ID), http.StatusCreated, &created)

	req := WithURLParam(httptest.NewRequest(http.MethodDelete, "/api/admin/books/"+a1.ID, nil), "id", a1.ID)
	w := httptest.NewRecorder()
	env.admin.DeleteBook(w, WithIdentity(req, admin))
	AssertJSONResponse(t, w, http.StatusOK, nil)

	assert.Equal(t, models.SwapStatusRejected, env.swap(t, created.Swap.ID).Status)
	assert.Equal(t, models.BookStatusAvailable, env.book(t, b1.ID).Status)
}
