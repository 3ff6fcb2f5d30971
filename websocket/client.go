package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/types"
)

const (
	// Initial delay before the second dial attempt
	initialReconnectDelay = 1 * time.Second
	// Maximum delay between dial attempts
	maxReconnectDelay = 30 * time.Second
	// Factor to multiply delay after each failed attempt
	reconnectDelayMultiplier = 2
	// Round trips without a context deadline give up after this long
	defaultTurnTimeout = 30 * time.Second
)

// ClientOptions configure a ChatClient.
type ClientOptions struct {
	// Secret is sent as the x-service-auth header.
	Secret string

	// Header carries extra handshake headers such as Authorization.
	Header http.Header

	// MaxAttempts bounds dial attempts per connect; zero means 3.
	MaxAttempts int

	// InitialDelay overrides the first backoff step.
	InitialDelay time.Duration

	Log *logger.Logger
}

// ChatClient talks to a chat server over one websocket, redialing with
// exponential backoff when the connection drops. Ask calls are serialized.
type ChatClient struct {
	url      string
	header   http.Header
	dialer   websocket.Dialer
	attempts int
	delay    time.Duration
	log      *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewChatClient accepts ws(s):// or http(s):// URLs; an empty path means /ws.
func NewChatClient(rawURL string, opts ClientOptions) (*ChatClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("websocket: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if opts.Secret != "" {
		header.Set("x-service-auth", opts.Secret)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = initialReconnectDelay
	}
	log := opts.Log
	if log == nil {
		log = logger.GetLogger()
	}
	return &ChatClient{
		url:      u.String(),
		header:   header,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		attempts: opts.MaxAttempts,
		delay:    opts.InitialDelay,
		log:      log.WithField("component", "ws-client"),
	}, nil
}

// connect dials until it succeeds, the attempts run out or ctx ends.
func (c *ChatClient) connect(ctx context.Context) error {
	delay := c.delay
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err == nil {
			c.conn = conn
			return nil
		}
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		lastErr = err
		c.log.Warnf("dial attempt %d failed: %v", attempt, err)
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= reconnectDelayMultiplier
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
	return fmt.Errorf("%w: %v", ErrMaxReconnectAttemptsReached, lastErr)
}

// Ask sends one message and waits for its reply. A broken connection is
// redialed once before the error is returned.
func (c *ChatClient) Ask(ctx context.Context, message, userID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := types.ChatRequest{Message: message, UserID: userID}
	var lastErr error
	for try := 0; try < 2; try++ {
		if c.conn == nil {
			if err := c.connect(ctx); err != nil {
				return "", err
			}
		}
		reply, err := c.roundTrip(ctx, req)
		if err == nil {
			if reply.Error != "" {
				return "", &ServerError{Message: reply.Error, RequestID: reply.RequestID}
			}
			return reply.Reply, nil
		}
		lastErr = err
		_ = c.conn.Close()
		c.conn = nil
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (c *ChatClient) roundTrip(ctx context.Context, req types.ChatRequest) (types.SocketReply, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTurnTimeout)
	}
	var reply types.SocketReply
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(req); err != nil {
		return reply, err
	}
	_ = c.conn.SetReadDeadline(deadline)
	if err := c.conn.ReadJSON(&reply); err != nil {
		return reply, err
	}
	return reply, nil
}

// Close sends a close frame and drops the connection.
func (c *ChatClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// URL is the endpoint the client dials.
func (c *ChatClient) URL() string { return c.url }
