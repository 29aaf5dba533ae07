package editor

import (
	"errors"
	"fmt"

	"github.com/stemsi/classpoll/internal/fieldsync"
)

var (
	// ErrValidation marks input rejected before touching the snapshot or the network.
	ErrValidation = errors.New("validation failed")
	ErrNotMounted = errors.New("entity is not mounted")
	ErrNotFound   = errors.New("entity not found")
	ErrNotLoaded  = errors.New("session not loaded")
)

// ValidationError reports a rejected edit of one field.
// errors.Is matches both ErrValidation and the underlying cause.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// SyncError is a failed write of one synchronized field.
type SyncError struct {
	Key fieldsync.Key
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Key, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
