package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat.completions endpoint.
type OpenAIClient struct {
	Model       string
	MaxTokens   int
	Temperature float64
	api         *openai.Client
}

func NewOpenAIClient(cfg Config, httpClient *http.Client) *OpenAIClient {
	cfg = withDefaults(cfg)
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		oc.BaseURL = base
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	return &OpenAIClient{
		Model:       firstNonEmpty(cfg.Model, openai.GPT4oMini),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		api:         openai.NewClientWithConfig(oc),
	}
}

func (c *OpenAIClient) Chat(ctx context.Context, system, user string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.Model,
		Messages:    msgs,
		MaxTokens:   c.MaxTokens,
		Temperature: float32(c.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
