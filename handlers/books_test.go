package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kevinaaaquil/grimoire/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), primitive.NilObjectID)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateBook(t *testing.T) {
	app := newTestApp(t)
	owner := primitive.NewObjectID()

	// ownership and rating fields sent by the client are ignored
	body, ct := multipartBody(t, map[string]any{
		"title": "Dune", "author": "Frank Herbert", "year": 1965, "genre": "SF",
		"userId": primitive.NewObjectID().Hex(), "averageRating": 5,
		"ratings": []map[string]any{{"userId": owner.Hex(), "grade": 5}},
	}, "cover.png", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/books", body)
	req.Header.Set("Content-Type", ct)
	rec := app.do(t, req, owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[messageResponse](t, rec)
	assert.Equal(t, "book created", created.Message)

	rec = app.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+created.ID, nil), primitive.NilObjectID)
	require.Equal(t, http.StatusOK, rec.Code)
	book := decode[models.Book](t, rec)
	assert.Equal(t, owner, book.UserID)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, 1965, book.Year)
	assert.Empty(t, book.Ratings)
	assert.Zero(t, book.AverageRating)
	assert.Contains(t, book.ImageURL, "http://test.local/images/cover_")
	assert.NotContains(t, rec.Body.String(), "imageKey")

	rec = app.do(t, httptest.NewRequest(http.MethodGet, imagePath(t, book.ImageURL), nil), primitive.NilObjectID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("RIFF")))
}

func TestCreateBook_Rejections(t *testing.T) {
	app := newTestApp(t)
	owner := primitive.NewObjectID()
	valid := map[string]any{"title": "Dune", "author": "Frank Herbert", "year": 1965}

	tests := []struct {
		name     string
		book     any
		filename string
		image    []byte
		user     primitive.ObjectID
		want     int
	}{
		{name: "no token", book: valid, filename: "c.png", image: pngBytes(t), want: http.StatusUnauthorized},
		{name: "no image", book: valid, user: owner, want: http.StatusBadRequest},
		{name: "not an image", book: valid, filename: "c.png", image: []byte("plain text pretending"), user: owner, want: http.StatusBadRequest},
		{name: "no book field", filename: "c.png", image: pngBytes(t), user: owner, want: http.StatusBadRequest},
		{name: "missing title", book: map[string]any{"author": "x"}, filename: "c.png", image: pngBytes(t), user: owner, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.book, tt.filename, tt.image)
			req := httptest.NewRequest(http.MethodPost, "/api/books", body)
			req.Header.Set("Content-Type", ct)

			rec := app.do(t, req, tt.user)

			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := app.do(t, httptest.NewRequest(http.MethodGet, "/api/books", nil), primitive.NilObjectID)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateBook_RequiresMultipart(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/api/books", jsonBody(t, map[string]any{"title": "Dune", "author": "x"}))
	req.Header.Set("Content-Type", "application/json")

	rec := app.do(t, req, primitive.NewObjectID())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBook_UnknownOrMalformedID(t *testing.T) {
	app := newTestApp(t)

	for _, id := range []string{primitive.NewObjectID().Hex(), "not-an-id"} {
		rec := app.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil), primitive.NilObjectID)
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
	}
}

func TestUpdateBook(t *testing.T) {
	app := newTestApp(t)
	owner := primitive.NewObjectID()
	id := app.createBook(t, owner, "Dune")

	req := httptest.NewRequest(http.MethodPut, "/api/books/"+id, jsonBody(t, map[string]any{
		"title": "Dune Messiah", "userId": primitive.NewObjectID().Hex(),
	}))
	req.Header.Set("Content-Type", "application/json")
	rec := app.do(t, req, owner)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	book := decode[models.Book](t, rec)
	assert.Equal(t, "Dune Messiah", book.Title)
	assert.Equal(t, "Frank Herbert", book.Author)
	assert.Equal(t, owner, book.UserID)
}

func TestUpdateBook_WithImage(t *testing.T) {
	app := newTestApp(t)
	owner := primitive.NewObjectID()
	id := app.createBook(t, owner, "Dune")
	before := decode[models.Book](t, app.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil), primitive.NilObjectID))

	body, ct := multipartBody(t, map[string]any{"genre": "Classic"}, "new cover.png", pngBytes(t))
	req := httptest.NewRequest(http.MethodPut, "/api/books/"+id, body)
	req.Header.Set("Content-Type", ct)
	rec := app.do(t, req, owner)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	after := decode[models.Book](t, rec)
	assert.Equal(t, "Classic", after.Genre)
	assert.Contains(t, after.ImageURL, "/images/new_cover_")
	assert.Equal(t, http.StatusOK, app.do(t, httptest.NewRequest(http.MethodGet, imagePath(t, after.ImageURL), nil), primitive.NilObjectID).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, httptest.NewRequest(http.MethodGet, imagePath(t, before.ImageURL), nil), primitive.NilObjectID).Code)
}

func TestUpdateAndDelete_ByNonOwner(t *testing.T) {
	app := newTestApp(t)
	owner, intruder := primitive.NewObjectID(), primitive.NewObjectID()
	id := app.createBook(t, owner, "Dune")
	before := app.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil), primitive.NilObjectID).Body.String()

	req := httptest.NewRequest(http.MethodPut, "/api/books/"+id, jsonBody(t, map[string]any{"title": "Stolen"}))
	req.Header.Set("Content-Type", "application/json")
	rec := app.do(t, req, intruder)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, httptest.NewRequest(http.MethodDelete, "/api/books/"+id, nil), intruder)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	after := app.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil), primitive.NilObjectID).Body.String()
	assert.JSONEq(t, before, after)
}

func TestDeleteBook(t *testing.T) {
	app := newTestApp(t)
	owner := primitive.NewObjectID()
	id := app.createBook(t, owner, "Dune")
	book := decode[models.Book](t, app.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil), primitive.NilObjectID))

	rec := app.do(t, httptest.NewRequest(http.MethodDelete, "/api/books/"+id, nil), owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"book deleted"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, app.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil), primitive.NilObjectID).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, httptest.NewRequest(http.MethodGet, imagePath(t, book.ImageURL), nil), primitive.NilObjectID).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, httptest.NewRequest(http.MethodDelete, "/api/books/"+id, nil), owner).Code)
}

func (a *testApp) rate(t *testing.T, bookID string, caller primitive.ObjectID, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/books/"+bookID+"/rating", jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	return a.do(t, req, caller)
}

func TestRateBook(t *testing.T) {
	app := newTestApp(t)
	id := app.createBook(t, primitive.NewObjectID(), "Dune")
	u1, u2 := primitive.NewObjectID(), primitive.NewObjectID()

	rec := app.rate(t, id, u1, map[string]any{"userId": u1.Hex(), "rating": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = app.rate(t, id, u2, map[string]any{"userId": u2.Hex(), "rating": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	book := decode[models.Book](t, rec)
	assert.Len(t, book.Ratings, 2)
	assert.Equal(t, 4.0, book.AverageRating)
	assert.Equal(t, id, book.ID.Hex())
}

func TestRateBook_Rejections(t *testing.T) {
	app := newTestApp(t)
	id := app.createBook(t, primitive.NewObjectID(), "Dune")
	me := primitive.NewObjectID()
	require.Equal(t, http.StatusOK, app.rate(t, id, me, map[string]any{"userId": me.Hex(), "rating": 4}).Code)

	tests := []struct {
		name   string
		caller primitive.ObjectID
		book   string
		body   any
		want   int
	}{
		{name: "second vote", caller: me, book: id, body: map[string]any{"userId": me.Hex(), "rating": 1}, want: http.StatusForbidden},
		{name: "someone else's id", caller: primitive.NewObjectID(), book: id, body: map[string]any{"userId": me.Hex(), "rating": 1}, want: http.StatusForbidden},
		{name: "malformed user id", caller: primitive.NewObjectID(), book: id, body: map[string]any{"userId": "nope", "rating": 1}, want: http.StatusForbidden},
		{name: "out of range", caller: me, book: id, body: map[string]any{"userId": me.Hex(), "rating": 9}, want: http.StatusBadRequest},
		{name: "missing rating", caller: me, book: id, body: map[string]any{"userId": me.Hex()}, want: http.StatusBadRequest},
		{name: "unknown book", caller: me, book: primitive.NewObjectID().Hex(), body: map[string]any{"userId": me.Hex(), "rating": 2}, want: http.StatusNotFound},
		{name: "no token", book: id, body: map[string]any{"userId": me.Hex(), "rating": 2}, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.rate(t, tt.book, tt.caller, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	book := decode[models.Book](t, app.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil), primitive.NilObjectID))
	assert.Len(t, book.Ratings, 1)
	assert.Equal(t, 4.0, book.AverageRating)
}

func TestBestRating(t *testing.T) {
	app := newTestApp(t)
	grades := []int{1, 5, 3, 3, 4}
	for i, g := range grades {
		id := app.createBook(t, primitive.NewObjectID(), fmt.Sprintf("book-%d", i))
		voter := primitive.NewObjectID()
		require.Equal(t, http.StatusOK, app.rate(t, id, voter, map[string]any{"userId": voter.Hex(), "rating": g}).Code)
	}

	rec := app.do(t, httptest.NewRequest(http.MethodGet, "/api/books/bestrating", nil), primitive.NilObjectID)

	require.Equal(t, http.StatusOK, rec.Code)
	books := decode[[]models.Book](t, rec)
	require.Len(t, books, 3)
	assert.Equal(t, "book-1", books[0].Title)
	assert.Equal(t, "book-4", books[1].Title)
	assert.Equal(t, "book-3", books[2].Title)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.createBook(t, primitive.NewObjectID(), "Dune")

	rec := app.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil), primitive.NilObjectID)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `grimoire_http_requests_total\{method="POST",route="/api/books/?",status="201"\} 1`, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `grimoire_assets_operations_total{op="store",result="ok"} 1`)
}
