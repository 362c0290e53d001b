package service

import (
	"errors"
	"fmt"

	"waitlist/internal/database"
	"waitlist/internal/models"
)

var (
	// ErrConflict matches every *ConflictError.
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = database.ErrNotFound
)

// ConflictError reports a transition whose preconditions did not hold, either
// because the caller's view was stale or because a concurrent change won.
// Nothing was changed when it is returned.
type ConflictError struct {
	Op        string
	BookingID string
	Status    models.BookingStatus
	Reason    string
}

func (e *ConflictError) Error() string {
	if e.BookingID == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s booking %s (%s): %s", e.Op, e.BookingID, e.Status, e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func conflict(op string, b *models.Booking, reason string) *ConflictError {
	ce := &ConflictError{Op: op, Reason: reason}
	if b != nil {
		ce.BookingID = b.ID
		ce.Status = b.Status
	}
	return ce
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
