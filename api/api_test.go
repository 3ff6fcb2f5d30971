package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomato-app/tomato-support/agents/support"
	"github.com/tomato-app/tomato-support/intent"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/types"
	"github.com/tomato-app/tomato-support/websocket"
)

const secret = "s3cret"

type fakeAgent struct {
	mu    sync.Mutex
	turns []support.Turn
	err   error
	boom  bool
}

func (f *fakeAgent) Handle(_ context.Context, turn support.Turn) (support.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boom {
		panic("kaboom")
	}
	f.turns = append(f.turns, turn)
	if f.err != nil {
		return support.Reply{}, f.err
	}
	return support.Reply{Text: "reply to " + turn.Message, Intent: intent.KindOpenEnded}, nil
}

func (f *fakeAgent) MemoryEnabled() bool { return true }
func (f *fakeAgent) ModelName() string   { return "gpt-4o-mini" }

func (f *fakeAgent) last() support.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.turns[len(f.turns)-1]
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, agent Agent, opts Options) *Server {
	t.Helper()
	if opts.SharedSecret == "" {
		opts.SharedSecret = secret
	}
	if opts.MaxMsgLen == 0 {
		opts.MaxMsgLen = 40
	}
	opts.Log = logger.NewNop()
	s, err := NewServer(agent, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func do(s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func authed(extra map[string]string) map[string]string {
	h := map[string]string{HeaderServiceAuth: secret}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func TestRootAndRequestID(t *testing.T) {
	s := newTestServer(t, &fakeAgent{}, Options{})

	rec := do(s, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	banner := decode[types.Banner](t, rec)
	assert.True(t, banner.OK)
	assert.Equal(t, "Tomato Chatbot API", banner.Service)
	assert.Equal(t, []string{"/health", "/chat", "/__routes"}, banner.Routes)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = do(s, http.MethodGet, "/", "", map[string]string{HeaderRequestID: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
}

func TestChatRequiresSecret(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestServer(t, agent, Options{})

	for _, h := range []map[string]string{
		{HeaderRequestID: "r1"},
		{HeaderRequestID: "r1", HeaderServiceAuth: "wrong"},
	} {
		rec := do(s, http.MethodPost, "/chat", `{"message":"hi"}`, h)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode[types.ErrorResponse](t, rec)
		assert.Equal(t, "Unauthorized", body.Error)
		assert.Equal(t, "r1", body.RequestID)
	}
	assert.Empty(t, agent.turns)
}

func TestChatValidation(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestServer(t, agent, Options{})

	for name, body := range map[string]string{
		"missing message": `{}`,
		"empty message":   `{"message":""}`,
		"wrong type":      `{"message":5}`,
		"too long":        `{"message":"` + strings.Repeat("x", 41) + `"}`,
		"long user id":    `{"message":"hi","userId":"` + strings.Repeat("u", 121) + `"}`,
		"not json":        `message=hi`,
	} {
		rec := do(s, http.MethodPost, "/chat", body, authed(nil))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, name)
		assert.NotEmpty(t, decode[types.ErrorResponse](t, rec).Details, name)
	}

	rec := do(s, http.MethodPost, "/chat", `{"message":"   "}`, authed(nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message is required", decode[types.ErrorResponse](t, rec).Error)
	assert.Empty(t, agent.turns)
}

func TestChatReply(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestServer(t, agent, Options{})

	rec := do(s, http.MethodPost, "/chat", `{"message":"  show my cart ","userId":" u1 "}`, authed(map[string]string{
		"Authorization":      "Bearer tok-7",
		"x-forwarded-cookie": "sid=abc",
		HeaderRequestID:      "req-9",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reply to show my cart", decode[types.ChatResponse](t, rec).Reply)

	turn := agent.last()
	assert.Equal(t, "show my cart", turn.Message)
	assert.Equal(t, "u1", turn.UserID)
	assert.Equal(t, "tok-7", turn.Credentials.Token)
	assert.Equal(t, "sid=abc", turn.Credentials.Cookie)
	assert.Equal(t, "req-9", turn.RequestID)

	rec = do(s, http.MethodPost, "/chat", `{"message":"hi","userId":null}`, authed(nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatErrors(t *testing.T) {
	agent := &fakeAgent{err: support.ErrUnavailable}
	s := newTestServer(t, agent, Options{})

	rec := do(s, http.MethodPost, "/chat", `{"message":"hi"}`, authed(nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Assistant temporarily unavailable", decode[types.ErrorResponse](t, rec).Error)

	agent.err = errors.New("boom")
	rec = do(s, http.MethodPost, "/chat", `{"message":"hi"}`, authed(nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPanicBecomes500(t *testing.T) {
	s := newTestServer(t, &fakeAgent{boom: true}, Options{})

	rec := do(s, http.MethodPost, "/chat", `{"message":"hi"}`, authed(map[string]string{HeaderRequestID: "req-p"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[types.ErrorResponse](t, rec)
	assert.Equal(t, "req-p", body.RequestID)
	assert.Equal(t, "req-p", rec.Header().Get(HeaderRequestID))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeAgent{}, Options{
		DBName:          "food-delivery",
		DB:              pinger{},
		OrderServiceURL: "http://orders.local",
	})
	rec := do(s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[types.HealthResponse](t, rec)
	assert.True(t, h.OK)
	assert.True(t, h.DBOK)
	assert.True(t, h.MemoryEnabled)
	assert.Equal(t, "food-delivery", h.DB)
	assert.Equal(t, "gpt-4o-mini", h.Model)
	assert.Equal(t, "1.3.3", h.Version)
	assert.Equal(t, "http://orders.local", h.OrderService)
	_, err := time.Parse(time.RFC3339Nano, h.Time)
	assert.NoError(t, err)

	s = newTestServer(t, &fakeAgent{}, Options{DB: pinger{err: errors.New("down")}})
	assert.False(t, decode[types.HealthResponse](t, do(s, http.MethodGet, "/health", "", nil)).DBOK)

	s = newTestServer(t, &fakeAgent{}, Options{})
	assert.False(t, decode[types.HealthResponse](t, do(s, http.MethodGet, "/health", "", nil)).DBOK)
}

func TestRouteListing(t *testing.T) {
	agent := &fakeAgent{}
	ws := websocket.NewHandler(agent, websocket.Options{Log: logger.NewNop()})
	s := newTestServer(t, agent, Options{Sockets: ws})

	rec := do(s, http.MethodGet, "/__routes", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"/", "/__routes", "/chat", "/health", "/ws"}, decode[[]string](t, rec))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeAgent{}, Options{AllowedOrigins: []string{"https://tomato.app"}})

	rec := do(s, http.MethodOptions, "/chat", "", map[string]string{
		"Origin":                         "https://tomato.app",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "content-type,x-service-auth",
	})
	assert.Equal(t, "https://tomato.app", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(s, http.MethodOptions, "/chat", "", map[string]string{
		"Origin":                        "https://evil.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &fakeAgent{}, Options{RateLimitRPS: 0.001, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/chat", `{"message":"hi"}`, authed(nil)).Code)
	rec := do(s, http.MethodPost, "/chat", `{"message":"hi"}`, authed(nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// health is not limited
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "", nil).Code)
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	now = now.Add(visitorTTL + time.Second)
	rl.sweep()
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}

func TestWebsocketBehindSecret(t *testing.T) {
	agent := &fakeAgent{}
	ws := websocket.NewHandler(agent, websocket.Options{Log: logger.NewNop()})
	s := newTestServer(t, agent, Options{Sockets: ws})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ws.Shutdown(ctx)
		srv.Close()
	})
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := gws.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := gws.DefaultDialer.Dial(base+"?auth="+secret, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(types.ChatRequest{Message: "hello"}))
	var reply types.SocketReply
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "reply to hello", reply.Reply)
}
