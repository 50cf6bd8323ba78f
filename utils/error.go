package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrDeliveryPending: receipt was attempted before delivery was confirmed.
// Recoverable; the form tells the receiver to come back later.
var ErrDeliveryPending = errors.New("delivery pending")

// ErrAlreadyCompleted: a one-time confirmation step was attempted a second time.
// Terminal for that phase; the form shows a locked, read-only view.
var ErrAlreadyCompleted = errors.New("already completed")

// ValidationError is a locally correctable input problem, shown inline on the form.
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

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError rejects a whole allocation proposal: the named batch
// cannot cover the requested quantity. No partial commits.
type InsufficientStockError struct {
	BatchId   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for batch %s: requested %s, available %s",
		e.BatchId, e.Requested.String(), e.Available.String())
}

// AdapterError wraps failures of the external record store (unreachable,
// unexpected shape). Surfaced as a generic retryable failure, never swallowed.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return "record store: " + e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

func NewAdapterError(op string, err error) error {
	return &AdapterError{Op: op, Err: err}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}

func IsAdapterError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}
