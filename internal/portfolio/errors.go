// Package portfolio holds the application services behind the HTTP API:
// portfolios and their positions, watchlists, users and settings.
//
// Every portfolio and watchlist belongs to one user. Services take the
// acting user's ID and treat rows owned by someone else as missing.
package portfolio

import (
	"errors"
	"fmt"

	"portfolio-tracker/internal/storage"
)

var (
	// ErrNotFound is returned for missing rows and for rows owned by
	// another user.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a create would duplicate an existing row.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized is returned when an API token does not match a user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrOutOfRange is returned when a portfolio's totals do not fit in a
	// float64.
	ErrOutOfRange = errors.New("value out of range")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// fromStore maps storage errors onto the service errors, keeping the
// original message.
func fromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
