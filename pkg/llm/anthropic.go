package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/loresmith/loresmith/pkg/config"
)

// AnthropicClient implements Client over the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
	cfg    *config.LLMConfig
}

// NewAnthropicClient builds a client from configuration. Returns
// ErrNotConfigured when the API key env var is empty — callers keep running
// with LLM features disabled.
func NewAnthropicClient(cfg *config.LLMConfig) (*AnthropicClient, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, ErrNotConfigured
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(key)),
		model:  anthropic.Model(cfg.Model),
		cfg:    cfg,
	}, nil
}

// Complete sends one prompt and returns the concatenated text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(callCtx, params)
	if err != nil {
		return "", classifyError(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// classifyError maps provider errors into the package taxonomy.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case 503, 529:
			return fmt.Errorf("%w: %v", ErrCapacity, err)
		}
	}
	return err
}
