package service

import (
	"github.com/kevinaaaquil/grimoire/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ApplyVote returns the book's ratings with voter's grade appended, together with the recomputed average.
// The book itself is not modified. If voter already rated the book, ErrAlreadyVoted is returned.
func ApplyVote(book *models.Book, voter primitive.ObjectID, grade int) ([]models.Rating, float64, error) {
	for _, r := range book.Ratings {
		if r.UserID == voter {
			return nil, 0, ErrAlreadyVoted
		}
	}
	ratings := make([]models.Rating, 0, len(book.Ratings)+1)
	ratings = append(ratings, book.Ratings...)
	ratings = append(ratings, models.Rating{UserID: voter, Grade: grade})
	return ratings, AverageRating(ratings), nil
}

// AverageRating is the mean grade rounded half-up to one decimal, or 0 for no ratings.
// Grades are integers, so the rounding is done exactly in tenths.
func AverageRating(ratings []models.Rating) float64 {
	n := int64(len(ratings))
	if n == 0 {
		return 0
	}
	var sum int64
	for _, r := range ratings {
		sum += int64(r.Grade)
	}
	// floor(10*sum/n + 1/2), valid for non-negative sums
	tenths := (20*sum + n) / (2 * n)
	return float64(tenths) / 10
}
