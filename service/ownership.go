package service

import (
	"github.com/kevinaaaquil/grimoire/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Authorize returns nil when requester owns book and ErrNotOwner otherwise.
// Ids are compared as raw ObjectIDs, so there is no string or case coercion involved.
func Authorize(book *models.Book, requester primitive.ObjectID) error {
	if book == nil || requester.IsZero() || book.UserID.IsZero() {
		return ErrNotOwner
	}
	if book.UserID != requester {
		return ErrNotOwner
	}
	return nil
}
