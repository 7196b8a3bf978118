package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Checker is implemented by outputs that carry cross-field rules the struct
// tags cannot express.
type Checker interface {
	Check() error
}

// GenerateJSON runs prompt against p under timeout and decodes the answer into
// T. Unknown fields, trailing data and failed `validate` tags all produce a
// KindSchemaInvalid error; a partial object is never returned.
func GenerateJSON[T any](ctx context.Context, p LLMProvider, task, prompt string, timeout time.Duration, opts ...Option) (T, error) {
	var zero T
	if p == nil {
		return zero, &Error{Kind: KindDisabled, Task: task}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	opts = append([]Option{WithTemperature(0), WithJSON()}, opts...)
	raw, err := p.Generate(callCtx, prompt, opts...)
	if err != nil {
		var typed *Error
		if errors.As(err, &typed) {
			return zero, err
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return zero, &Error{Kind: KindTimeout, Task: task, Err: err}
		}
		return zero, &Error{Kind: KindProvider, Task: task, Err: err}
	}

	return DecodeStrict[T](task, raw)
}

// DecodeStrict parses raw model output into T.
func DecodeStrict[T any](task, raw string) (T, error) {
	var out T
	body := extractJSON(raw)
	if body == "" {
		return out, &Error{Kind: KindSchemaInvalid, Task: task, Reason: "no JSON object in output"}
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		var zero T
		return zero, &Error{Kind: KindSchemaInvalid, Task: task, Err: err}
	}
	if dec.More() {
		var zero T
		return zero, &Error{Kind: KindSchemaInvalid, Task: task, Reason: "trailing data after JSON object"}
	}

	if err := validate.Struct(out); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			var zero T
			return zero, &Error{Kind: KindSchemaInvalid, Task: task, Err: err}
		}
	}
	if c, ok := any(&out).(Checker); ok {
		if err := c.Check(); err != nil {
			var zero T
			return zero, &Error{Kind: KindSchemaInvalid, Task: task, Err: err}
		}
	}
	return out, nil
}

// extractJSON strips markdown fences and surrounding prose, returning the
// outermost {...} span.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return string(bytes.TrimSpace([]byte(s[start : end+1])))
}
