package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kevinaaaquil/grimoire/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process book and user store. Each call is atomic with respect to the others,
// which is the same guarantee the document store gives for single-document writes.
type Memory struct {
	mu     sync.Mutex
	seq    int64
	books  map[primitive.ObjectID]*memBook
	users  map[primitive.ObjectID]*models.User
	emails map[string]primitive.ObjectID
}

type memBook struct {
	seq  int64
	book models.Book
}

func NewMemory() *Memory {
	return &Memory{
		books:  make(map[primitive.ObjectID]*memBook),
		users:  make(map[primitive.ObjectID]*models.User),
		emails: make(map[string]primitive.ObjectID),
	}
}

func cloneBook(b models.Book) *models.Book {
	out := b
	out.Ratings = append([]models.Rating{}, b.Ratings...)
	return &out
}

func (m *Memory) InsertBook(_ context.Context, book *models.Book) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	stored := cloneBook(*book)
	stored.ID = primitive.NewObjectID()
	stored.Version = 0
	m.books[stored.ID] = &memBook{seq: m.seq, book: *stored}
	return stored.ID, nil
}

func (m *Memory) BookByID(_ context.Context, id primitive.ObjectID) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBook(b.book), nil
}

func (m *Memory) ListBooks(_ context.Context, opts ListOptions) ([]models.Book, error) {
	m.mu.Lock()
	all := make([]memBook, 0, len(m.books))
	for _, b := range m.books {
		all = append(all, memBook{seq: b.seq, book: *cloneBook(b.book)})
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if opts.SortByRating {
			if all[i].book.AverageRating != all[j].book.AverageRating {
				return all[i].book.AverageRating > all[j].book.AverageRating
			}
			return all[i].seq > all[j].seq
		}
		return all[i].seq < all[j].seq
	})
	if opts.Limit > 0 && int64(len(all)) > opts.Limit {
		all = all[:opts.Limit]
	}
	books := make([]models.Book, 0, len(all))
	for _, b := range all {
		books = append(books, b.book)
	}
	return books, nil
}

func (m *Memory) UpdateBookFields(_ context.Context, id primitive.ObjectID, patch models.BookPatch) error {
	return m.updateFields(id, -1, patch)
}

func (m *Memory) UpdateBookFieldsAt(_ context.Context, id primitive.ObjectID, expectedVersion int64, patch models.BookPatch) error {
	return m.updateFields(id, expectedVersion, patch)
}

// updateFields applies patch; a negative expectedVersion skips the version check.
func (m *Memory) updateFields(id primitive.ObjectID, expectedVersion int64, patch models.BookPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return ErrNotFound
	}
	if expectedVersion >= 0 && b.book.Version != expectedVersion {
		return ErrVersionConflict
	}
	if patch.Title != nil {
		b.book.Title = *patch.Title
	}
	if patch.Author != nil {
		b.book.Author = *patch.Author
	}
	if patch.Year != nil {
		b.book.Year = *patch.Year
	}
	if patch.Genre != nil {
		b.book.Genre = *patch.Genre
	}
	if patch.ImageURL != nil {
		b.book.ImageURL = *patch.ImageURL
	}
	if patch.ImageKey != nil {
		b.book.ImageKey = *patch.ImageKey
	}
	b.book.UpdatedAt = time.Now()
	b.book.Version++
	return nil
}

func (m *Memory) UpdateRatings(_ context.Context, id primitive.ObjectID, expectedVersion int64, ratings []models.Rating, average float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return ErrNotFound
	}
	if b.book.Version != expectedVersion {
		return ErrVersionConflict
	}
	b.book.Ratings = append([]models.Rating{}, ratings...)
	b.book.AverageRating = average
	b.book.UpdatedAt = time.Now()
	b.book.Version++
	return nil
}

func (m *Memory) DeleteBook(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return ErrNotFound
	}
	delete(m.books, id)
	return nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	u := *m.users[id]
	return &u, nil
}

func (m *Memory) CreateUser(_ context.Context, user *models.User) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, ok := m.emails[key]; ok {
		return primitive.NilObjectID, ErrDuplicate
	}
	u := *user
	u.ID = primitive.NewObjectID()
	m.users[u.ID] = &u
	m.emails[key] = u.ID
	return u.ID, nil
}
