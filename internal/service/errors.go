package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the single error callers see for unknown, deleted and foreign files.
	ErrNotFound = errors.New("file not found")
	// ErrUnauthenticated is returned when no actor identity accompanies the call.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrBackendUnavailable wraps failures reaching the metadata or object store.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrCorruptBlob means stored content failed to decrypt.
	ErrCorruptBlob = errors.New("stored content is corrupt")
	// ErrDanglingRecord means an active record points at a blob that no longer exists.
	ErrDanglingRecord = errors.New("file record has no stored content")
	// ErrOrphanedBlob marks a blob left behind by a failed upload. It is only logged.
	ErrOrphanedBlob = errors.New("orphaned blob")
)

// ValidationError reports rejected upload input. No state was changed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
