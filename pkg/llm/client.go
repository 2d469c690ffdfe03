// Package llm wraps the Anthropic API behind the narrow text-in/text-out
// contract the backend needs: agent routing and community summaries.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when no API key is available. Callers
	// treat LLM-backed features as disabled, not failed.
	ErrNotConfigured = errors.New("llm client not configured")

	// ErrRateLimited is returned on provider 429s.
	ErrRateLimited = errors.New("llm rate limited")

	// ErrCapacity is returned on provider overload (529/503).
	ErrCapacity = errors.New("llm capacity exceeded")
)

// CompletionRequest is one text completion call.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Client is the LLM interface. Implemented by AnthropicClient; by fakes in
// tests.
type Client interface {
	// Complete sends one prompt and returns the model's text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
