package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
	JSON        bool   // Ask the backend for a JSON-only completion
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// WithJSON constrains the completion to a single JSON value when the backend supports it.
func WithJSON() Option {
	return func(o *Options) {
		o.JSON = true
	}
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}

// Disabled is used when no LLM backend is configured. Every call fails with
// KindDisabled so callers take their deterministic fallback path.
type Disabled struct{}

func (Disabled) Chat(context.Context, []Message, ...Option) (string, error) {
	return "", &Error{Kind: KindDisabled, Task: "chat"}
}

func (Disabled) Generate(context.Context, string, ...Option) (string, error) {
	return "", &Error{Kind: KindDisabled, Task: "generate"}
}
