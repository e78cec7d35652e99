package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for Money and aggregate operations. Callers match with
// errors.Is.
var (
	ErrCurrencyMismatch = errors.New("cannot operate on different currencies")
	ErrNegativeResult   = errors.New("operation would produce a negative amount")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrDuplicateEntry   = errors.New("entry already present")
	ErrNotFound         = errors.New("entry not found")
)

// ValidationError reports a rejected field on a factory or mutator input.
// Construction fails closed: no partially valid object is ever returned
// alongside one of these.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
