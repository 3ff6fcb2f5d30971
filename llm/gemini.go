package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GeminiClient adapts a langchaingo model to Client.
type GeminiClient struct {
	Model       string
	MaxTokens   int
	Temperature float64
	llm         llms.Model
}

func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	cfg = withDefaults(cfg)
	model := firstNonEmpty(cfg.Model, "gemini-1.5-flash")
	g, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return NewGeminiFromModel(g, model, cfg), nil
}

// NewGeminiFromModel wraps an existing langchaingo model.
func NewGeminiFromModel(m llms.Model, name string, cfg Config) *GeminiClient {
	cfg = withDefaults(cfg)
	return &GeminiClient{Model: name, MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature, llm: m}
}

// Chat folds the system prompt into the human turn; the Gemini adapter has no
// portable system role.
func (c *GeminiClient) Chat(ctx context.Context, system, user string) (string, error) {
	parts := []string{}
	if s := strings.TrimSpace(system); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, user)

	resp, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, parts...)},
		llms.WithTemperature(c.Temperature),
		llms.WithMaxTokens(c.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", errors.New("gemini: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
