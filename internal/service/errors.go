package service

import (
	"errors"
	"fmt"
)

var (
	ErrIDRequired       = errors.New("id is required")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrEmailExists      = errors.New("email already exists")
	ErrNoProducts       = errors.New("no products selected")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidStock     = errors.New("invalid stock")
	ErrInvalidPhone     = errors.New("invalid phone")

	// ErrInvalidArchiveKey rejects object keys outside the report prefix.
	ErrInvalidArchiveKey = errors.New("invalid archive key")
)

// ValidationError is an input problem worth showing to the caller verbatim.
// Err, when set, is one of the sentinels above.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, sentinel error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Err: sentinel}
}

// UserMessage returns the text a client should see for err: the message of a
// ValidationError, or a generic line for anything else.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return "Internal error: " + err.Error()
}
