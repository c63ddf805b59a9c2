package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"kiosco/backend/internal/store"
)

var (
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState is shared with the store so a state race detected at
	// commit time reads the same as one detected up front.
	ErrInvalidState = store.ErrInvalidState
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func notFound(entity string, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, store.ErrNotFound)
}

// checkCents rejects amounts the NUMERIC(12,2) columns would silently round.
func checkCents(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return invalid(field, "amount must have at most 2 decimal places")
	}
	return nil
}
