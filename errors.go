package circuitbreaker

import (
	"errors"
	"strings"
)

var _ error = (*RejectedError)(nil)

// RejectedError is returned for requests refused while a circuit is
// tripped.
type RejectedError struct {
	name string
}

// NewRejectedError returns a rejection error naming the circuit that
// refused the request.
func NewRejectedError(name string) error {
	return RejectedError{name: name}
}

// Error returns the rejection message with the circuit name.
func (e RejectedError) Error() string {
	var b strings.Builder
	b.WriteString("request rejected by tripped circuit breaker: ")
	b.WriteString(e.name)
	return b.String()
}

// Retryable marks rejections as non retryable, so that retrying
// middlewares stop instead of hammering a tripped circuit.
func (e RejectedError) Retryable() bool {
	return false
}

// IsRejected returns true when the given error is a circuit rejection.
func IsRejected(err error) bool {
	var rejected RejectedError
	return errors.As(err, &rejected)
}
