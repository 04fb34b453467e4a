// Package errs defines the error kinds shared across the learning core.
//
// Components wrap these sentinels with fmt.Errorf("...: %w", ...) so callers
// can branch on kind with errors.Is while logs keep the full chain.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. The HTTP layer maps each kind to a status code;
// everything else in the chain is context for logs.
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrNoCandidate         = errors.New("no candidate")
	ErrExternalUnavailable = errors.New("external dependency unavailable")
	ErrInternal            = errors.New("internal error")
)

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// NoCandidate wraps ErrNoCandidate with a formatted message.
func NoCandidate(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNoCandidate)...)
}

// ExternalUnavailable wraps ErrExternalUnavailable with a formatted message.
func ExternalUnavailable(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrExternalUnavailable)...)
}

// Internal wraps ErrInternal with a formatted message.
func Internal(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInternal)...)
}

// FundsError reports a spend that could not cover its cost. Currency names
// the first insufficient currency in check order.
type FundsError struct {
	Currency  string
	Required  int64
	Available int64
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("insufficient %s: need %d, have %d", e.Currency, e.Required, e.Available)
}

// Unwrap makes errors.Is(err, ErrInsufficientFunds) hold for FundsError.
func (e *FundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall returns how much of the currency is missing.
func (e *FundsError) Shortfall() int64 { return e.Required - e.Available }

// Kind returns a stable machine-readable name for the error's kind, or
// "internal" when no known sentinel is in the chain.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNoCandidate):
		return "no_candidate"
	case errors.Is(err, ErrExternalUnavailable):
		return "external_unavailable"
	default:
		return "internal"
	}
}
