// Package errs defines the surface-stable error kinds shared by every layer.
// Core components wrap one of these sentinels with fmt.Errorf("...: %w", ...);
// the HTTP and socket facades map kinds to wire responses in one place.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated — missing, invalid or expired credentials. 401.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden — valid identity, disallowed by policy. 403.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound — target entity absent. 404.
	ErrNotFound = errors.New("not found")

	// ErrConflict — uniqueness or state-precondition violation. 409.
	ErrConflict = errors.New("conflict")

	// ErrValidation — payload schema violation. 400.
	ErrValidation = errors.New("validation failed")

	// ErrStorageUnavailable — transient backing-store failure. 503.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError carries per-field details alongside ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for a single field.
func Invalid(field, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// FieldsOf extracts per-field details from an error chain, or nil.
func FieldsOf(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
