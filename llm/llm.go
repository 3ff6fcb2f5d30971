// Package llm wraps the chat-completion providers the support agent can use.
// Every backend satisfies Client; callers treat any error as "no answer" and
// fall back to deterministic text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tomato-app/tomato-support/internal/httptrace"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/resilience"
)

var ErrLLMDisabled = errors.New("llm client disabled (missing key)")

// Client is the minimal interface used by the support agent.
type Client interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider    string // openai | anthropic | gemini
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	Trace       bool
}

const (
	DefaultMaxTokens   = 300
	DefaultTemperature = 0.3
	DefaultTimeout     = 10 * time.Second
)

// New builds the client named by cfg.Provider. An empty key disables the LLM
// unless the base URL points at a local server.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Client, error) {
	cfg = withDefaults(cfg)
	local := isLocal(cfg.BaseURL)
	if strings.TrimSpace(cfg.APIKey) == "" && !local {
		return nil, ErrLLMDisabled
	}

	var traceLog *logger.Logger
	if cfg.Trace {
		traceLog = log
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: httptrace.Wrap(http.DefaultTransport, traceLog, "llm"),
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIClient(cfg, httpClient), nil
	case "anthropic", "claude":
		return NewAnthropicClient(cfg, httpClient), nil
	case "gemini", "google":
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}

// Name describes a client for health output.
func Name(c Client) string {
	switch v := c.(type) {
	case *OpenAIClient:
		return v.Model
	case *AnthropicClient:
		return v.Model
	case *GeminiClient:
		return v.Model
	case *Guarded:
		return Name(v.Client)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%T", c)
	}
}

// Guarded fails fast with resilience.ErrCircuitOpen while its breaker is open.
type Guarded struct {
	Client
	breaker *resilience.Breaker
}

// Guard wraps c with b. A nil breaker returns c unchanged.
func Guard(c Client, b *resilience.Breaker) Client {
	if c == nil || b == nil {
		return c
	}
	return &Guarded{Client: c, breaker: b}
}

func (g *Guarded) Chat(ctx context.Context, system, user string) (string, error) {
	var out string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.Client.Chat(ctx, system, user)
		return err
	})
	return out, err
}

func withDefaults(cfg Config) Config {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	return cfg
}

func isLocal(base string) bool {
	return strings.Contains(base, "localhost") || strings.Contains(base, "127.0.0.1")
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
