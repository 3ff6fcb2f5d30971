// Package orderservice is the client for the remote cart and order service.
// The remote has shipped several route layouts over time, so every operation
// probes an ordered list of candidate paths and the first 2xx response wins.
package orderservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/resilience"
)

const maxBody = 1 << 20

var (
	// ErrNotConfigured is returned when no base URL is set.
	ErrNotConfigured = errors.New("orderservice: not configured")
	// ErrAuthRequired is returned before any network call when credentials
	// are required and absent.
	ErrAuthRequired = errors.New("orderservice: credentials required")
	// ErrCartNotEmpty is returned when every clear strategy ran but the cart
	// still has lines.
	ErrCartNotEmpty = errors.New("orderservice: cart not empty after clear")
)

// Credentials are the end user's forwarded auth material.
type Credentials struct {
	Token  string
	Cookie string
}

// Present reports whether any credential is set.
func (c Credentials) Present() bool {
	return strings.TrimSpace(c.Token) != "" || strings.TrimSpace(c.Cookie) != ""
}

// CredentialsFromRequest collects what an inbound request forwards for the
// order service: a bearer token or token header, and the end-user cookie.
func CredentialsFromRequest(r *http.Request) Credentials {
	var c Credentials
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		c.Token = strings.TrimSpace(auth[7:])
	}
	if c.Token == "" {
		c.Token = strings.TrimSpace(r.Header.Get("token"))
	}
	c.Cookie = strings.TrimSpace(r.Header.Get("x-forwarded-cookie"))
	if c.Cookie == "" {
		c.Cookie = strings.TrimSpace(r.Header.Get("Cookie"))
	}
	return c
}

// Attempt records one probed candidate.
type Attempt struct {
	Method string
	Path   string
	Status int
	Err    error
}

func (a Attempt) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s %s: %v", a.Method, a.Path, a.Err)
	}
	return fmt.Sprintf("%s %s -> %d", a.Method, a.Path, a.Status)
}

// ProbeError is returned when no candidate path answered 2xx.
type ProbeError struct {
	Op       string
	Attempts []Attempt
}

func (e *ProbeError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return fmt.Sprintf("orderservice: %s failed after %d attempts: %s", e.Op, len(e.Attempts), strings.Join(parts, "; "))
}

// Outage reports whether every attempt failed at the transport level or with
// a 5xx, as opposed to the remote rejecting the request.
func (e *ProbeError) Outage() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if a.Err == nil && a.Status < 500 {
			return false
		}
	}
	return true
}

// RemoteError is a 2xx response whose body reports failure.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("orderservice: %s rejected: %s", e.Op, e.Message)
}

// IsOutage is the breaker failure predicate: only outages count.
func IsOutage(err error) bool {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Outage()
	}
	return err != nil && !errors.Is(err, context.Canceled)
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	AuthHeader  string
	RequireAuth bool
	Timeout     time.Duration
	Routes      Routes
}

// Client talks to the remote order service.
type Client struct {
	cfg      Config
	http     *http.Client
	resolver NameResolver
	breaker  *resilience.Breaker
	log      *logger.Logger
}

// New builds a client. httpClient may be nil; breaker may be nil.
func New(cfg Config, httpClient *http.Client, resolver NameResolver, breaker *resilience.Breaker, log *logger.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "token"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	cfg.Routes = cfg.Routes.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{cfg: cfg, http: httpClient, resolver: resolver, breaker: breaker, log: log.WithField("component", "orderservice")}, nil
}

// RequiresAuth reports whether calls need credentials.
func (c *Client) RequiresAuth() bool { return c.cfg.RequireAuth }

// BaseURL is the configured remote root.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

func (c *Client) authorize(creds Credentials) error {
	if c.cfg.RequireAuth && !creds.Present() {
		return ErrAuthRequired
	}
	return nil
}

// response is a decoded 2xx answer.
type response struct {
	Path   string
	Status int
	Body   map[string]interface{}
}

// probe tries paths in order with method and returns the first 2xx answer.
func (c *Client) probe(ctx context.Context, op, method string, paths []string, payload interface{}, creds Credentials, userID string) (*response, error) {
	var out *response
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var attempts []Attempt
		for _, p := range paths {
			status, body, err := c.do(ctx, method, p, payload, creds, userID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				attempts = append(attempts, Attempt{Method: method, Path: p, Err: err})
				continue
			}
			if status/100 == 2 {
				out = &response{Path: p, Status: status, Body: body}
				return nil
			}
			attempts = append(attempts, Attempt{Method: method, Path: p, Status: status})
		}
		return &ProbeError{Op: op, Attempts: attempts}
	})
	if err != nil {
		return nil, err
	}
	if ok, present := out.Body["success"].(bool); present && !ok {
		return out, &RemoteError{Op: op, Message: stringField(out.Body, "message", "error", "detail")}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, creds Credentials, userID string) (int, map[string]interface{}, error) {
	var body io.Reader
	if payload != nil && method != http.MethodGet {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := strings.TrimSpace(creds.Token); tok != "" {
		req.Header.Set(c.cfg.AuthHeader, tok)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if ck := strings.TrimSpace(creds.Cookie); ck != "" {
		req.Header.Set("Cookie", ck)
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read body (status %d): %w", res.StatusCode, err)
	}
	c.log.WithFields(map[string]interface{}{"method": method, "path": path, "status": res.StatusCode}).Debug("order service call")
	return res.StatusCode, DecodeBody(raw, res.StatusCode), nil
}

// DecodeBody parses a response body without trusting it: objects are
// returned as-is, other JSON values are wrapped under "items" (arrays) or
// "value", and non-JSON text becomes a diagnostic object.
func DecodeBody(raw []byte, status int) map[string]interface{} {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		text := string(trimmed)
		if len(text) > 500 {
			text = text[:500]
		}
		return map[string]interface{}{"raw": text, "status": status}
	}
	switch t := v.(type) {
	case map[string]interface{}:
		return t
	case []interface{}:
		return map[string]interface{}{"items": t}
	default:
		return map[string]interface{}{"value": t}
	}
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
