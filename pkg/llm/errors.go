package llm

import (
	"errors"
	"fmt"
)

// Kind classifies an LLM failure.
type Kind string

const (
	KindSchemaInvalid Kind = "SCHEMA_INVALID"
	KindTimeout       Kind = "TIMEOUT"
	KindProvider      Kind = "PROVIDER"
	KindDisabled      Kind = "DISABLED"
)

// ErrSchemaInvalid matches any Error of kind KindSchemaInvalid via errors.Is.
var ErrSchemaInvalid = errors.New("llm: output does not match schema")

// Error is the typed failure returned by structured calls.
type Error struct {
	Kind   Kind
	Task   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("llm %s: %s", e.Task, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrSchemaInvalid && e.Kind == KindSchemaInvalid
}

// KindOf returns the failure kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
