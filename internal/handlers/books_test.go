package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/services"
	"github.com/BradenHooton/bookswap/internal/storage"
)

// newMultipartRequest builds a multipart body with text fields and an
// optional image part.
func newMultipartRequest(t *testing.T, method, url string, fields map[string]string, image []byte, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="cover"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestBookHandler_Create_JSON(t *testing.T) {
	env := newTestEnv(t)
	owner := env.NewTestUser(t, "owner@example.com", models.RoleUser)

	req := NewTestRequest(t, http.MethodPost, "/api/books", CreateBookRequest{
		Title:  "  Dune ",
		Author: "Frank Herbert",
		Image:  "covers/dune.jpg",
	})
	w := httptest.NewRecorder()
	env.books.Create(w, WithIdentity(req, owner))

	var body bookBody
	AssertJSONResponse(t, w, http.StatusCreated, &body)
	assert.True(t, body.OK)
	assert.Equal(t, "Dune", body.Book.Title)
	assert.Equal(t, models.ApprovalPending, body.Book.Approval)
	assert.Equal(t, models.BookStatusAvailable, body.Book.Status)
	assert.Equal(t, owner.UserID, body.Book.OwnerID)
	assert.Equal(t, "owner@example.com", body.Book.OwnerEmail)
	assert.Regexp(t, `^BK-[0-9A-F]{6}$`, body.Book.PublicID)
	require.NotNil(t, body.Book.Image)
	assert.Equal(t, "/uploads/covers/dune.jpg", *body.Book.Image)
	require.NotNil(t, body.Book.ImageURL)
	assert.Equal(t, testBaseURL+"/uploads/covers/dune.jpg", *body.Book.ImageURL)
}

func TestBookHandler_Create_Validation(t *testing.T) {
	env := newTestEnv(t)
	owner := env.NewTestUser(t, "owner@example.com", models.RoleUser)

	req := NewTestRequest(t, http.MethodPost, "/api/books", map[string]string{"title": "No Author"})
	w := httptest.NewRecorder()
	env.books.Create(w, WithIdentity(req, owner))
	AssertErrorResponse(t, w, http.StatusBadRequest, "author: this field is required")

	req = NewTestRequest(t, http.MethodPost, "/api/books", CreateBookRequest{Title: " ", Author: "x"})
	w = httptest.NewRecorder()
	env.books.Create(w, WithIdentity(req, owner))
	AssertErrorResponse(t, w, http.StatusBadRequest, "title and author are required")
}

func TestBookHandler_Create_Multipart(t *testing.T) {
	env := newTestEnv(t)
	owner := env.NewTestUser(t, "owner@example.com", models.RoleUser)

	req := newMultipartRequest(t, http.MethodPost, "/api/books",
		map[string]string{"title": "Emma", "author": "Jane Austen"},
		[]byte("\x89PNG fake image"), "image/png")
	w := httptest.NewRecorder()
	env.books.Create(w, WithIdentity(req, owner))

	var body bookBody
	AssertJSONResponse(t, w, http.StatusCreated, &body)
	require.NotNil(t, body.Book.Image)
	assert.True(t, strings.HasPrefix(*body.Book.Image, storage.UploadsPrefix))
	assert.True(t, strings.HasSuffix(*body.Book.Image, ".png"))

	data, err := os.ReadFile(filepath.Join(env.images.Dir(), filepath.Base(*body.Book.Image)))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake image", string(data))
}

func TestBookHandler_Create_MultipartUnsupportedImage(t *testing.T) {
	env := newTestEnv(t)
	owner := env.NewTestUser(t, "owner@example.com", models.RoleUser)

	req := newMultipartRequest(t, http.MethodPost, "/api/books",
		map[string]string{"title": "Emma", "author": "Jane Austen"},
		[]byte("%PDF"), "application/pdf")
	w := httptest.NewRecorder()
	env.books.Create(w, WithIdentity(req, owner))

	AssertErrorResponse(t, w, http.StatusBadRequest, "")
	books, err := env.bookSvc.ListMine(req.Context(), owner)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestBookHandler_Create_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.books.Create(w, NewTestRequest(t, http.MethodPost, "/api/books", CreateBookRequest{Title: "a", Author: "b"}))
	AssertErrorResponse(t, w, http.StatusUnauthorized, "")
}

func TestBookHandler_ListAndGet_Visibility(t *testing.T) {
	env := newTestEnv(t)
	owner := env.NewTestUser(t, "owner@example.com", models.RoleUser)
	stranger := env.NewTestUser(t, "stranger@example.com", models.RoleUser)

	approved := env.NewTestBook(t, owner, "Approved Book")
	pending, err := env.bookSvc.Create(t.Context(), owner, services.CreateBookInput{Title: "Pending Book", Author: "Someone"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	env.books.List(w, httptest.NewRequest(http.MethodGet, "/api/books", nil))
	var list booksBody
	AssertJSONResponse(t, w, http.StatusOK, &list)
	require.Len(t, list.Books, 1)
	assert.Equal(t, approved.ID, list.Books[0].ID)

	w = httptest.NewRecorder()
	env.books.List(w, httptest.NewRequest(http.MethodGet, "/api/books?q=nothing-matches", nil))
	AssertJSONResponse(t, w, http.StatusOK, &list)
	assert.Empty(t, list.Books)

	w = httptest.NewRecorder()
	env.books.List(w, httptest.NewRequest(http.MethodGet, "/api/books?status=lost", nil))
	AssertErrorResponse(t, w, http.StatusBadRequest, "status must be available or swapped")

	get := func(identity *models.Identity, id string) *httptest.ResponseRecorder {
		req := WithURLParam(httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil), "id", id)
		w := httptest.NewRecorder()
		env.books.Get(w, WithIdentity(req, identity))
		return w
	}

	AssertJSONResponse(t, get(nil, approved.ID), http.StatusOK, nil)
	AssertErrorResponse(t, get(nil, pending.ID), http.StatusNotFound, "book not found")
	AssertErrorResponse(t, get(stranger, pending.ID), http.StatusNotFound, "book not found")
	AssertJSONResponse(t, get(owner, pending.ID), http.StatusOK, nil)

	w = httptest.NewRecorder()
	env.books.Mine(w, WithIdentity(httptest.NewRequest(http.MethodGet, "/api/books/mine", nil), owner))
	AssertJSONResponse(t, w, http.StatusOK, &list)
	assert.Len(t, list.Books, 2)
}

func TestBookHandler_Update(t *testing.T) {
	env := newTestEnv(t)
	owner := env.NewTestUser(t, "owner@example.com", models.RoleUser)
	stranger := env.NewTestUser(t, "stranger@example.com", models.RoleUser)
	book := env.NewTestBook(t, owner, "Old Title")

	update := func(identity *models.Identity, body any) *httptest.ResponseRecorder {
		req := WithURLParam(NewTestRequest(t, http.MethodPut, "/api/books/"+book.ID, body), "id", book.ID)
		w := httptest.NewRecorder()
		env.books.Update(w, WithIdentity(req, identity))
		return w
	}

	w := update(owner, map[string]string{"title": "New Title"})
	var body bookBody
	AssertJSONResponse(t, w, http.StatusOK, &body)
	assert.Equal(t, "New Title", body.Book.Title)
	assert.Equal(t, "Author of Old Title", body.Book.Author)

	AssertErrorResponse(t, update(stranger, map[string]string{"title": "Hijack"}), http.StatusForbidden, "")
	AssertErrorResponse(t, update(owner, map[string]string{"status": "lost"}), http.StatusBadRequest,
		"status: must be one of: available swapped")
	assert.Equal(t, "New Title", env.book(t, book.ID).Title)
}

func TestBookHandler_Update_MultipartOnlyTouchesSentFields(t *testing.T) {
	env := newTestEnv(t)
	owner := env.NewTestUser(t, "owner@example.com", models.RoleUser)
	book := env.NewTestBook(t, owner, "Kept Title")

	req := newMultipartRequest(t, http.MethodPut, "/api/books/"+book.ID,
		map[string]string{"description": "now with a cover"},
		[]byte("gif-bytes"), "image/gif")
	req = WithURLParam(req, "id", book.ID)
	w := httptest.NewRecorder()
	env.books.Update(w, WithIdentity(req, owner))

	var body bookBody
	AssertJSONResponse(t, w, http.StatusOK, &body)
	assert.Equal(t, "Kept Title", body.Book.Title)
	assert.Equal(t, "now with a cover", body.Book.Description)
	require.NotNil(t, body.Book.Image)
	assert.True(t, strings.HasSuffix(*body.Book.Image, ".gif"))
}

func TestBookHandler_Delete(t *testing.T) {
	env := newTestEnv(t)
	owner := env.NewTestUser(t, "owner@example.com", models.RoleUser)
	stranger := env.NewTestUser(t, "stranger@example.com", models.RoleUser)
	book := env.NewTestBook(t, owner, "Doomed")

	del := func(identity *models.Identity) *httptest.ResponseRecorder {
		req := WithURLParam(httptest.NewRequest(http.MethodDelete, "/api/books/"+book.ID, nil), "id", book.ID)
		w := httptest.NewRecorder()
		env.books.Delete(w, WithIdentity(req, identity))
		return w
	}

	AssertErrorResponse(t, del(stranger), http.StatusForbidden, "")
	AssertJSONResponse(t, del(owner), http.StatusOK, nil)
	AssertErrorResponse(t, del(owner), http.StatusNotFound, "book not found")
}
