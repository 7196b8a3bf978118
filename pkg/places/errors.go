package places

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind string

const (
	Transient ErrorKind = "TRANSIENT"
	Permanent ErrorKind = "PERMANENT"
)

// Error is a classified provider failure. Status is zero for transport errors.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("places: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("places: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("places: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status to an error kind. Rate limiting and
// server errors are worth retrying; every other 4xx is our fault.
func classifyStatus(status int) ErrorKind {
	if status == 429 || status >= 500 {
		return Transient
	}
	return Permanent
}

// IsTransient is the retry classifier for provider calls.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
