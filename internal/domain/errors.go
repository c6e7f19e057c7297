package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrNotConfigured = errors.New("not configured")
)

// ConflictError is returned when an optimistic write lost against a newer version of the record.
// Exists is false when the record vanished between read and write.
type ConflictError struct {
	Exists           bool
	CurrentUpdatedAt *time.Time
}

func (e *ConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if !e.Exists {
		return fmt.Sprintf("%s: record no longer exists", ErrConflict)
	}
	if e.CurrentUpdatedAt == nil {
		return fmt.Sprintf("%s: record was modified", ErrConflict)
	}
	return fmt.Sprintf("%s: record was modified at %s", ErrConflict, e.CurrentUpdatedAt.UTC().Format(time.RFC3339Nano))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
