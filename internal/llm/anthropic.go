package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

type anthropicReasoner struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func (r *anthropicReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	if r == nil {
		return "", errors.New("nil reasoner")
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	msg, err := r.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("anthropic messages: status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	parts := make([]string, 0, len(msg.Content))
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		if txt := strings.TrimSpace(block.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	if len(parts) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.Join(parts, "\n"), nil
}
