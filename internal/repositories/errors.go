package repositories

import (
	"errors"
	"fmt"
)

// ErrInvalidPageToken is wrapped by list operations that cannot decode the caller supplied cursor.
var ErrInvalidPageToken = errors.New("repositories: invalid page token")

// StoreErrorKind classifies persistence failures.
type StoreErrorKind string

const (
	StoreErrorUnknown     StoreErrorKind = "unknown"
	StoreErrorNotFound    StoreErrorKind = "not_found"
	StoreErrorConflict    StoreErrorKind = "conflict"
	StoreErrorUnavailable StoreErrorKind = "unavailable"
)

// StoreError is the RepositoryError returned by the non-Firestore backends.
type StoreError struct {
	Op   string
	Kind StoreErrorKind
	Err  error
}

var _ RepositoryError = (*StoreError)(nil)

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Kind == StoreErrorNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Kind == StoreErrorConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Kind == StoreErrorUnavailable }

// NewStoreError constructs a typed store error.
func NewStoreError(op string, kind StoreErrorKind, err error) *StoreError {
	if kind == "" {
		kind = StoreErrorUnknown
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// NotFound is shorthand for a StoreErrorNotFound error.
func NotFound(op string, format string, args ...any) *StoreError {
	return NewStoreError(op, StoreErrorNotFound, fmt.Errorf(format, args...))
}

// Conflict is shorthand for a StoreErrorConflict error.
func Conflict(op string, format string, args ...any) *StoreError {
	return NewStoreError(op, StoreErrorConflict, fmt.Errorf(format, args...))
}
