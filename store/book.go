package store

import (
	"context"
	"errors"
	"time"

	"github.com/kevinaaaquil/grimoire/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no document matches the requested id.
	ErrNotFound = errors.New("store: not found")
	// ErrVersionConflict is returned by conditional updates when the document changed since it was read.
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrDuplicate is returned when a unique index rejects an insert.
	ErrDuplicate = errors.New("store: duplicate key")
)

// ListOptions controls ordering and size of ListBooks results.
// With SortByRating, books come back by averageRating descending and, on equal averages, newest first.
// Otherwise they come back in creation order.
type ListOptions struct {
	SortByRating bool
	Limit        int64
}

func (db *DB) InsertBook(ctx context.Context, book *models.Book) (primitive.ObjectID, error) {
	if book.Ratings == nil {
		book.Ratings = []models.Rating{}
	}
	book.Version = 0
	res, err := db.Books().InsertOne(ctx, book, options.InsertOne())
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (db *DB) BookByID(ctx context.Context, id primitive.ObjectID) (*models.Book, error) {
	var book models.Book
	err := db.Books().FindOne(ctx, bson.M{"_id": id}).Decode(&book)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (db *DB) ListBooks(ctx context.Context, opts ListOptions) ([]models.Book, error) {
	find := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.SortByRating {
		find.SetSort(bson.D{{Key: "averageRating", Value: -1}, {Key: "_id", Value: -1}})
	}
	if opts.Limit > 0 {
		find.SetLimit(opts.Limit)
	}
	cur, err := db.Books().Find(ctx, bson.M{}, find)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	books := []models.Book{}
	if err := cur.All(ctx, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// UpdateBookFields sets only the fields present in patch. Identity, owner and rating fields are never touched.
func (db *DB) UpdateBookFields(ctx context.Context, id primitive.ObjectID, patch models.BookPatch) error {
	return db.updateFields(ctx, bson.M{"_id": id}, id, patch)
}

// UpdateBookFieldsAt is UpdateBookFields guarded by the stored version, like UpdateRatings. Image swaps go
// through it so two concurrent replacements cannot both release the same old blob.
func (db *DB) UpdateBookFieldsAt(ctx context.Context, id primitive.ObjectID, expectedVersion int64, patch models.BookPatch) error {
	return db.updateFields(ctx, bson.M{"_id": id, "version": expectedVersion}, id, patch)
}

func (db *DB) updateFields(ctx context.Context, filter bson.M, id primitive.ObjectID, patch models.BookPatch) error {
	set := bson.M{"updatedAt": time.Now()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Author != nil {
		set["author"] = *patch.Author
	}
	if patch.Year != nil {
		set["year"] = *patch.Year
	}
	if patch.Genre != nil {
		set["genre"] = *patch.Genre
	}
	if patch.ImageURL != nil {
		set["imageUrl"] = *patch.ImageURL
	}
	if patch.ImageKey != nil {
		set["imageKey"] = *patch.ImageKey
	}
	res, err := db.Books().UpdateOne(ctx, filter, bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return db.missingOrConflict(ctx, id)
}

// missingOrConflict explains a conditional update that matched nothing.
func (db *DB) missingOrConflict(ctx context.Context, id primitive.ObjectID) error {
	n, err := db.Books().CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// UpdateRatings replaces ratings and averageRating together, but only if the stored version still equals
// expectedVersion. Both fields land in one single-document write.
func (db *DB) UpdateRatings(ctx context.Context, id primitive.ObjectID, expectedVersion int64, ratings []models.Rating, average float64) error {
	res, err := db.Books().UpdateOne(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{
			"$set": bson.M{
				"ratings":       ratings,
				"averageRating": average,
				"updatedAt":     time.Now(),
			},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return db.missingOrConflict(ctx, id)
}

func (db *DB) DeleteBook(ctx context.Context, id primitive.ObjectID) error {
	res, err := db.Books().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
