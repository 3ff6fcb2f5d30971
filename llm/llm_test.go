package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/resilience"
)

func TestNewWithoutKeyIsDisabled(t *testing.T) {
	c, err := New(context.Background(), Config{Provider: "openai"}, logger.NewNop())
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrLLMDisabled)
}

func TestNewAllowsLocalServerWithoutKey(t *testing.T) {
	c, err := New(context.Background(), Config{Provider: "openai", BaseURL: "http://localhost:11434/v1"}, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)
}

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(context.Background(), Config{Provider: "anthropic", APIKey: "k"}, logger.NewNop())
	require.NoError(t, err)
	ac, ok := c.(*AnthropicClient)
	require.True(t, ok)
	assert.Equal(t, DefaultMaxTokens, ac.MaxTokens)

	_, err = New(context.Background(), Config{Provider: "mystery", APIKey: "k"}, logger.NewNop())
	assert.Error(t, err)
}

func TestOpenAIChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Hello there  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, srv.Client())
	out, err := c.Chat(context.Background(), "be brief", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
	assert.Equal(t, "gpt-4o-mini", got["model"])
	msgs, _ := got["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestAnthropicChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		var req anthropicRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "sys", req.System)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	out, err := c.Chat(context.Background(), "sys", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestAnthropicChatDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewAnthropicClient(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	_, err := c.Chat(context.Background(), "", "hi")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

type fakeModel struct {
	resp *llms.ContentResponse
	err  error
	msgs []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.msgs = msgs
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func TestGeminiChat(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: " yes "}}}}
	c := NewGeminiFromModel(m, "gemini-test", Config{})
	out, err := c.Chat(context.Background(), "rules", "question")
	require.NoError(t, err)
	assert.Equal(t, "yes", out)
	require.Len(t, m.msgs, 1)
	assert.Len(t, m.msgs[0].Parts, 2)
	assert.Equal(t, "gemini-test", Name(c))
}

func TestGeminiChatErrors(t *testing.T) {
	c := NewGeminiFromModel(&fakeModel{err: errors.New("quota")}, "g", Config{})
	_, err := c.Chat(context.Background(), "", "q")
	assert.Error(t, err)

	c = NewGeminiFromModel(&fakeModel{resp: &llms.ContentResponse{}}, "g", Config{})
	_, err = c.Chat(context.Background(), "", "q")
	assert.Error(t, err)
}

type flakyLLM struct{ calls int }

func (f *flakyLLM) Chat(context.Context, string, string) (string, error) {
	f.calls++
	return "", errors.New("upstream 500")
}

func TestGuardOpensAfterFailures(t *testing.T) {
	inner := &flakyLLM{}
	c := Guard(inner, resilience.New("llm", 2, time.Minute))

	for i := 0; i < 2; i++ {
		_, err := c.Chat(context.Background(), "sys", "hi")
		require.Error(t, err)
	}
	_, err := c.Chat(context.Background(), "sys", "hi")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)

	assert.Same(t, Client(inner), Guard(inner, nil))
	assert.Equal(t, "gpt-4o-mini", Name(Guard(&OpenAIClient{Model: "gpt-4o-mini"}, resilience.New("llm", 1, time.Second))))
}
