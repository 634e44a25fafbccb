// Package llm adapts hosted model APIs to the engine's Reasoner capability.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

const (
	ProviderOpenAI           = "openai"
	ProviderOpenAICompatible = "openai_compatible"
	ProviderAnthropic        = "anthropic"

	defaultMaxOutputTokens = 4096
)

var ErrEmptyCompletion = errors.New("model returned no text")

// Reasoner is the completion contract shared with the engine.
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type ProviderOptions struct {
	Type            string
	BaseURL         string
	APIKey          string
	Model           string
	MaxOutputTokens int
}

// NewReasoner builds a Reasoner for one provider/model pair. SDK-level retries
// are disabled; callers own retry policy.
func NewReasoner(opts ProviderOptions) (Reasoner, error) {
	providerType := strings.ToLower(strings.TrimSpace(opts.Type))
	apiKey := strings.TrimSpace(opts.APIKey)
	baseURL := strings.TrimSpace(opts.BaseURL)
	model := strings.TrimSpace(opts.Model)
	if apiKey == "" {
		return nil, errors.New("missing provider api key")
	}
	if model == "" {
		return nil, errors.New("missing model")
	}
	maxTokens := int64(opts.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}

	switch providerType {
	case ProviderOpenAI, ProviderOpenAICompatible:
		ropts := []ooption.RequestOption{ooption.WithAPIKey(apiKey), ooption.WithMaxRetries(0)}
		if baseURL != "" {
			ropts = append(ropts, ooption.WithBaseURL(baseURL))
		}
		client := openai.NewClient(ropts...)
		if providerType == ProviderOpenAICompatible {
			return &chatReasoner{client: client, model: model, maxTokens: maxTokens}, nil
		}
		return &responsesReasoner{client: client, model: model, maxTokens: maxTokens}, nil
	case ProviderAnthropic:
		ropts := []aoption.RequestOption{aoption.WithAPIKey(apiKey), aoption.WithMaxRetries(0)}
		if baseURL != "" {
			ropts = append(ropts, aoption.WithBaseURL(baseURL))
		}
		return &anthropicReasoner{client: anthropic.NewClient(ropts...), model: model, maxTokens: maxTokens}, nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", providerType)
	}
}
