package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"
)

// responsesReasoner talks to the OpenAI Responses API.
type responsesReasoner struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func (r *responsesReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	if r == nil {
		return "", errors.New("nil reasoner")
	}
	params := oresponses.ResponseNewParams{
		Model:           oshared.ResponsesModel(r.model),
		MaxOutputTokens: openai.Int(r.maxTokens),
		Input:           oresponses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
	}
	resp, err := r.client.Responses.New(ctx, params)
	if err != nil {
		return "", describeOpenAIError("responses", err)
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// chatReasoner talks to Chat Completions, which most compatible gateways expose.
type chatReasoner struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func (r *chatReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	if r == nil {
		return "", errors.New("nil reasoner")
	}
	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(r.model),
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		MaxTokens: openai.Int(r.maxTokens),
	}
	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", describeOpenAIError("chat completions", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func describeOpenAIError(api string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai %s: status %d: %w", api, apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai %s: %w", api, err)
}
