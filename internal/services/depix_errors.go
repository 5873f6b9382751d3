package services

import (
	"errors"
	"fmt"
)

// PaymentErrorKind classifies failures of the Depix payment client.
type PaymentErrorKind string

const (
	ErrKindConfiguration      PaymentErrorKind = "configuration"
	ErrKindTransport          PaymentErrorKind = "transport"
	ErrKindInvalidResponse    PaymentErrorKind = "invalid_response"
	ErrKindIncompleteResponse PaymentErrorKind = "incomplete_response"
	ErrKindProvider           PaymentErrorKind = "provider"
)

// PaymentError is a structured Depix client error.
type PaymentError struct {
	Kind    PaymentErrorKind
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func newPaymentError(kind PaymentErrorKind, message string, err error) *PaymentError {
	return &PaymentError{Kind: kind, Message: message, Err: err}
}

// PaymentErrorKindOf returns the kind of err if it is a PaymentError.
func PaymentErrorKindOf(err error) (PaymentErrorKind, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

var (
	// ErrOrderNotFound is returned when an order reference resolves to nothing.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUnknownStatus is returned for webhook statuses outside the known set.
	ErrUnknownStatus = errors.New("unknown status")
)
