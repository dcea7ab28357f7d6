package services

import (
	"errors"
	"fmt"

	"github.com/gigmarket/api/internal/repositories"
)

var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrIllegalTransition is returned when the transition table has no edge for the status pair and actor role.
	ErrIllegalTransition = errors.New("order: illegal transition")
	// ErrMissingDeliverable is returned when work is submitted for review without artifacts.
	ErrMissingDeliverable = errors.New("order: missing deliverable")
	// ErrMissingFeedback is returned when a revision is requested without feedback text.
	ErrMissingFeedback = errors.New("order: missing revision feedback")
	// ErrRoleMismatch is returned when the actor is not the order participant for the claimed role.
	ErrRoleMismatch = errors.New("role mismatch")
	// ErrDuplicateReview is returned when the order side has already been reviewed.
	ErrDuplicateReview = errors.New("review: already submitted")
	// ErrOrderNotCompleted is returned when a review targets an order that is not completed.
	ErrOrderNotCompleted = errors.New("review: order not completed")
	// ErrPaymentNotCompleted is returned when the gateway has not collected funds for the session.
	ErrPaymentNotCompleted = errors.New("payment: not completed")
	// ErrSessionNotFound is returned for unknown checkout session references.
	ErrSessionNotFound = errors.New("payment: session not found")
	// ErrGigUnavailable is returned when the gig is missing or not approved.
	ErrGigUnavailable = errors.New("gig: unavailable")
	// ErrAmountMismatch reports a gateway that collected a different amount or currency than the session snapshot.
	ErrAmountMismatch = errors.New("payment: collected amount mismatch")
	// ErrConcurrencyConflict is returned when conditional writes keep losing races.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrOrderNotFound indicates the order does not exist or is hidden from the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrGigNotFound indicates the gig does not exist.
	ErrGigNotFound = errors.New("gig: not found")
	// ErrUnavailable wraps storage outages.
	ErrUnavailable = errors.New("repository unavailable")
)

// mapRepositoryError translates repository failures into service sentinels. notFound and conflict replace the
// generic categories when the caller knows what entity was involved.
func mapRepositoryError(err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict() && conflict != nil:
			return fmt.Errorf("%w: %v", conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
