package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient calls the Messages API directly.
// https://docs.anthropic.com/en/api/messages
type AnthropicClient struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	HTTP        *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicClient(cfg Config, httpClient *http.Client) *AnthropicClient {
	cfg = withDefaults(cfg)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &AnthropicClient{
		APIKey:      cfg.APIKey,
		Model:       firstNonEmpty(cfg.Model, "claude-3-5-haiku-latest"),
		BaseURL:     strings.TrimRight(firstNonEmpty(cfg.BaseURL, "https://api.anthropic.com/v1"), "/"),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		HTTP:        httpClient,
	}
}

// Chat sends one request; failures are returned, never retried.
func (c *AnthropicClient) Chat(ctx context.Context, system, user string) (string, error) {
	b, err := json.Marshal(anthropicRequest{
		Model:       c.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: user}},
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		System:      strings.TrimSpace(system),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/messages", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: http request: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	if res.StatusCode/100 != 2 {
		return "", fmt.Errorf("anthropic: %d %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out anthropicResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("anthropic: decode failed: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("anthropic: %s - %s", out.Error.Type, out.Error.Message)
	}
	for _, part := range out.Content {
		if part.Type == "text" && strings.TrimSpace(part.Text) != "" {
			return strings.TrimSpace(part.Text), nil
		}
	}
	return "", errors.New("anthropic: no text content found")
}
