package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kevinaaaquil/grimoire/middleware"
	"github.com/kevinaaaquil/grimoire/service"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type BooksHandler struct {
	Books    *service.BookService
	Logger   *zap.Logger
	MaxBytes int64
}

func bookIDParam(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		// An id that cannot exist is reported like any other unknown book.
		writeError(w, http.StatusNotFound, "book not found")
		return primitive.NilObjectID, false
	}
	return id, true
}

func requester(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return primitive.NilObjectID, false
	}
	return userID, true
}

func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.Books.List(r.Context())
	if err != nil {
		fail(h.Logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *BooksHandler) BestRating(w http.ResponseWriter, r *http.Request) {
	books, err := h.Books.BestRated(r.Context())
	if err != nil {
		fail(h.Logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	book, err := h.Books.Get(r.Context(), id)
	if err != nil {
		fail(h.Logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// Create expects multipart/form-data with a "book" JSON field and an "image" file.
func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}
	if !isMultipart(r) {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data with book and image")
		return
	}
	var payload bookPayload
	hasBook, img, err := parseBookForm(w, r, h.MaxBytes, &payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !hasBook {
		writeError(w, http.StatusBadRequest, "book field is required")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	book, err := h.Books.Create(r.Context(), userID, service.BookInput{
		Title:  payload.Title,
		Author: payload.Author,
		Year:   payload.Year,
		Genre:  payload.Genre,
	}, img)
	if err != nil {
		fail(h.Logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "book created", ID: book.ID.Hex()})
}

// Update accepts either a JSON body, or multipart/form-data with an optional "book" JSON field and an
// optional replacement "image".
func (h *BooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	var payload bookChangesPayload
	var img *service.Image
	if isMultipart(r) {
		var err error
		if _, img, err = parseBookForm(w, r, h.MaxBytes, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.MaxBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	book, err := h.Books.Update(r.Context(), id, userID, service.BookChanges{
		Title:  payload.Title,
		Author: payload.Author,
		Year:   payload.Year,
		Genre:  payload.Genre,
	}, img)
	if err != nil {
		fail(h.Logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	if err := h.Books.Delete(r.Context(), id, userID); err != nil {
		fail(h.Logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "book deleted"})
}

// Rate takes {"userId": "...", "rating": n}. userId must be the caller's own id.
func (h *BooksHandler) Rate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	var payload ratingPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	// A malformed userId cannot match the caller and is rejected by the service as a mismatch.
	voter, _ := primitive.ObjectIDFromHex(payload.UserID)
	book, err := h.Books.Rate(r.Context(), id, userID, voter, *payload.Rating)
	if err != nil {
		fail(h.Logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}
