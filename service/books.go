package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kevinaaaquil/grimoire/metrics"
	"github.com/kevinaaaquil/grimoire/models"
	"github.com/kevinaaaquil/grimoire/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// BookRepository is the persistence boundary for books. Every method touches a single document.
type BookRepository interface {
	InsertBook(ctx context.Context, book *models.Book) (primitive.ObjectID, error)
	BookByID(ctx context.Context, id primitive.ObjectID) (*models.Book, error)
	ListBooks(ctx context.Context, opts store.ListOptions) ([]models.Book, error)
	UpdateBookFields(ctx context.Context, id primitive.ObjectID, patch models.BookPatch) error
	UpdateBookFieldsAt(ctx context.Context, id primitive.ObjectID, expectedVersion int64, patch models.BookPatch) error
	UpdateRatings(ctx context.Context, id primitive.ObjectID, expectedVersion int64, ratings []models.Rating, average float64) error
	DeleteBook(ctx context.Context, id primitive.ObjectID) error
}

type Options struct {
	BestRatingLimit int64
	MinGrade        int
	MaxGrade        int
	Retry           RetryPolicy
}

// BookInput carries the descriptive fields of a new book.
type BookInput struct {
	Title  string
	Author string
	Year   int
	Genre  string
}

// BookChanges is the allow-list of fields a client may change. Nil means keep the current value.
type BookChanges struct {
	Title  *string
	Author *string
	Year   *int
	Genre  *string
}

// Image is an uploaded image file before transcoding.
type Image struct {
	Filename string
	Data     []byte
}

type BookService struct {
	repo    BookRepository
	assets  *AssetManager
	logger  *zap.Logger
	metrics *metrics.Metrics
	opts    Options
}

func NewBookService(repo BookRepository, assets *AssetManager, logger *zap.Logger, m *metrics.Metrics, opts Options) *BookService {
	if opts.BestRatingLimit <= 0 {
		opts.BestRatingLimit = 3
	}
	if opts.MinGrade == 0 && opts.MaxGrade == 0 {
		opts.MaxGrade = 5
	}
	return &BookService{repo: repo, assets: assets, logger: logger, metrics: m, opts: opts}
}

// Create stores the image, then inserts the book owned by owner. If the insert fails the stored image is
// left in place and logged; removing it could fail as well and the caller gets a StorageError either way.
func (s *BookService) Create(ctx context.Context, owner primitive.ObjectID, in BookInput, img *Image) (*models.Book, error) {
	if owner.IsZero() {
		return nil, ErrUnauthenticated
	}
	if img == nil || len(img.Data) == 0 {
		return nil, ErrImageRequired
	}
	asset, err := s.assets.Store(ctx, img.Filename, img.Data)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	book := &models.Book{
		UserID:    owner,
		Title:     in.Title,
		Author:    in.Author,
		Year:      in.Year,
		Genre:     in.Genre,
		ImageURL:  asset.URL,
		ImageKey:  asset.Key,
		Ratings:   []models.Rating{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.repo.InsertBook(ctx, book)
	if err != nil {
		s.logger.Warn("book insert failed, image left orphaned",
			zap.String("image_key", asset.Key), zap.Error(err))
		return nil, fmt.Errorf("%w: insert book: %w", ErrStorage, err)
	}
	book.ID = id
	s.logger.Info("book created", zap.String("book_id", id.Hex()), zap.String("owner", owner.Hex()))
	return book, nil
}

func (s *BookService) Get(ctx context.Context, id primitive.ObjectID) (*models.Book, error) {
	book, err := s.repo.BookByID(ctx, id)
	if err != nil {
		return nil, storageErr("find book", err)
	}
	return book, nil
}

func (s *BookService) List(ctx context.Context) ([]models.Book, error) {
	books, err := s.repo.ListBooks(ctx, store.ListOptions{})
	if err != nil {
		return nil, storageErr("list books", err)
	}
	return books, nil
}

// BestRated returns the top books by average rating; equal averages list the newest book first.
func (s *BookService) BestRated(ctx context.Context) ([]models.Book, error) {
	books, err := s.repo.ListBooks(ctx, store.ListOptions{SortByRating: true, Limit: s.opts.BestRatingLimit})
	if err != nil {
		return nil, storageErr("list best rated books", err)
	}
	return books, nil
}

// Update applies changes to a book owned by requester. A new image replaces the bound one only after the
// record points at it; a failed transcode or write leaves the record and its image untouched.
func (s *BookService) Update(ctx context.Context, id, requester primitive.ObjectID, changes BookChanges, img *Image) (*models.Book, error) {
	patch := models.BookPatch{
		Title:  changes.Title,
		Author: changes.Author,
		Year:   changes.Year,
		Genre:  changes.Genre,
	}
	if img != nil && len(img.Data) > 0 {
		return s.updateWithImage(ctx, id, requester, patch, img)
	}

	book, err := s.repo.BookByID(ctx, id)
	if err != nil {
		return nil, storageErr("find book", err)
	}
	if err := Authorize(book, requester); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return book, nil
	}
	if err := s.repo.UpdateBookFields(ctx, id, patch); err != nil {
		return nil, storageErr("update book", err)
	}
	return s.Get(ctx, id)
}

// updateWithImage swaps the bound image with a version-guarded write. When another write got in between,
// the new blob is released and the swap starts over from a fresh read, so only the asset that ends up
// bound survives.
func (s *BookService) updateWithImage(ctx context.Context, id, requester primitive.ObjectID, patch models.BookPatch, img *Image) (*models.Book, error) {
	err := retryOnConflict(ctx, s.opts.Retry, nil, func(ctx context.Context) error {
		book, err := s.repo.BookByID(ctx, id)
		if err != nil {
			return storageErr("find book", err)
		}
		if err := Authorize(book, requester); err != nil {
			return err
		}
		old := Asset{Key: book.ImageKey, URL: book.ImageURL}
		_, err = s.assets.Replace(ctx, old, img.Filename, img.Data, func(next Asset) error {
			p := patch
			p.ImageURL = &next.URL
			p.ImageKey = &next.Key
			err := s.repo.UpdateBookFieldsAt(ctx, id, book.Version, p)
			if err != nil && !errors.Is(err, store.ErrVersionConflict) {
				return storageErr("update book", err)
			}
			return err
		})
		return err
	})
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, fmt.Errorf("%w: update book: %w", ErrStorage, err)
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a book owned by requester together with its image. The image goes first and its
// release is best effort, so the record delete is never held back by the blob store.
func (s *BookService) Delete(ctx context.Context, id, requester primitive.ObjectID) error {
	book, err := s.repo.BookByID(ctx, id)
	if err != nil {
		return storageErr("find book", err)
	}
	if err := Authorize(book, requester); err != nil {
		return err
	}
	s.assets.Release(ctx, Asset{Key: book.ImageKey, URL: book.ImageURL})
	if err := s.repo.DeleteBook(ctx, id); err != nil {
		return storageErr("delete book", err)
	}
	s.logger.Info("book deleted", zap.String("book_id", id.Hex()))
	return nil
}

// Rate records voter's grade on a book. The claimed voter must be the authenticated requester, and each
// user votes once. Ratings and average are written together with a version check, retried when another
// write got in between.
func (s *BookService) Rate(ctx context.Context, id, requester, voter primitive.ObjectID, grade int) (*models.Book, error) {
	err := retryOnConflict(ctx, s.opts.Retry, func(int) { s.metrics.IncVoteRetry() }, func(ctx context.Context) error {
		book, err := s.repo.BookByID(ctx, id)
		if err != nil {
			return storageErr("find book", err)
		}
		if requester.IsZero() || voter != requester {
			return ErrVoterMismatch
		}
		if grade < s.opts.MinGrade || grade > s.opts.MaxGrade {
			return ErrGradeRange
		}
		ratings, average, err := ApplyVote(book, voter, grade)
		if err != nil {
			return err
		}
		err = s.repo.UpdateRatings(ctx, id, book.Version, ratings, average)
		if err != nil && !errors.Is(err, store.ErrVersionConflict) {
			return storageErr("update ratings", err)
		}
		return err
	})
	switch {
	case err == nil:
		s.metrics.ObserveVote("accepted")
	case errors.Is(err, ErrAlreadyVoted):
		s.metrics.ObserveVote("already_voted")
		return nil, err
	case errors.Is(err, ErrNotFound):
		s.metrics.ObserveVote("not_found")
		return nil, err
	case errors.Is(err, ErrForbidden):
		s.metrics.ObserveVote("forbidden")
		return nil, err
	case errors.Is(err, ErrInvalidInput):
		s.metrics.ObserveVote("invalid")
		return nil, err
	case errors.Is(err, store.ErrVersionConflict):
		s.metrics.ObserveVote("contended")
		return nil, fmt.Errorf("%w: update ratings: %w", ErrStorage, err)
	default:
		s.metrics.ObserveVote("error")
		return nil, err
	}
	return s.Get(ctx, id)
}
