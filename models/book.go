package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Rating is a single vote cast on a book. A user appears at most once per book.
type Rating struct {
	UserID primitive.ObjectID `bson:"userId" json:"userId"`
	Grade  int                `bson:"grade" json:"grade"`
}

type Book struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID        primitive.ObjectID `bson:"userId" json:"userId"` // owner, set once at creation
	Title         string             `bson:"title" json:"title"`
	Author        string             `bson:"author" json:"author"`
	Year          int                `bson:"year" json:"year"`
	Genre         string             `bson:"genre" json:"genre"`
	ImageURL      string             `bson:"imageUrl" json:"imageUrl"`
	ImageKey      string             `bson:"imageKey" json:"-"` // blob name in the image store
	Ratings       []Rating           `bson:"ratings" json:"ratings"`
	AverageRating float64            `bson:"averageRating" json:"averageRating"`
	Version       int64              `bson:"version" json:"-"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// BookPatch lists the fields a client may change on an existing book. Nil fields are left untouched.
type BookPatch struct {
	Title    *string
	Author   *string
	Year     *int
	Genre    *string
	ImageURL *string
	ImageKey *string
}

// Empty reports whether the patch carries no field at all.
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.Year == nil && p.Genre == nil &&
		p.ImageURL == nil && p.ImageKey == nil
}
