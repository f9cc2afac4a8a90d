package service

import (
	"errors"
	"fmt"

	"github.com/kevinaaaquil/grimoire/store"
)

// Domain errors. Handlers map these to client-facing statuses with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("book not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")
)

// Infrastructure errors. Clients only see a generic failure; the wrapped cause is kept for logs.
var (
	ErrAssetWrite = errors.New("asset write failed")
	ErrStorage    = errors.New("storage failure")
)

var (
	ErrNotOwner      = fmt.Errorf("%w: only the owner may change this book", ErrForbidden)
	ErrVoterMismatch = fmt.Errorf("%w: rating user does not match the authenticated user", ErrForbidden)
	ErrAlreadyVoted  = fmt.Errorf("%w: user has already rated this book", ErrConflict)
	ErrImageRequired = fmt.Errorf("%w: image is required", ErrInvalidInput)
	ErrGradeRange    = fmt.Errorf("%w: rating out of range", ErrInvalidInput)
)

// storageErr turns a repository error into ErrNotFound or a wrapped ErrStorage.
func storageErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
