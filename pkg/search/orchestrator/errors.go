package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"ai-restaurant-search-be/pkg/places"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/narrator"
)

// PipelineError is the single error type Execute returns. Message is a
// localized explanation safe to show to the user.
type PipelineError struct {
	Stage   Stage
	Code    string
	Message string
	// Language is the assistant language Message was written in.
	Language langctx.Language
	Err      error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline %s: %s: %v", e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("pipeline %s: %s", e.Stage, e.Code)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// errorCode maps a stage failure to its public code.
func errorCode(err error) string {
	var pe *places.Error
	if errors.As(err, &pe) {
		if pe.Kind == places.Permanent {
			return narrator.CodeProviderRejected
		}
		return narrator.CodeProviderUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return narrator.CodeTimeout
	}
	return narrator.CodeInternal
}
