// Package websocket serves the chat agent over websocket connections and
// provides a reconnecting client for it.
package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomato-app/tomato-support/agents/support"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/orderservice"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 64 << 10
	sendBuffer    = 16
)

// Responder answers one chat turn.
type Responder interface {
	Handle(ctx context.Context, turn support.Turn) (support.Reply, error)
}

// Options configure a Handler.
type Options struct {
	MaxMsgLen      int
	AllowedOrigins []string
	Log            *logger.Logger
}

// Handler upgrades requests to chat sessions. Each text frame is one turn;
// turns of a session are answered in order.
type Handler struct {
	agent     Responder
	maxMsgLen int
	log       *logger.Logger
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewHandler creates a chat handler.
func NewHandler(agent Responder, opts Options) *Handler {
	if opts.MaxMsgLen <= 0 {
		opts.MaxMsgLen = 2000
	}
	log := opts.Log
	if log == nil {
		log = logger.GetLogger()
	}
	h := &Handler{
		agent:     agent,
		maxMsgLen: opts.MaxMsgLen,
		log:       log.WithField("component", "websocket"),
		sessions:  make(map[*session]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowAll || origin == "" {
			return true
		}
		return set[strings.TrimRight(strings.ToLower(origin), "/")]
	}
}

// ServeHTTP upgrades the connection and starts the session pumps.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}

	id := w.Header().Get("x-request-id")
	if id == "" {
		id = uuid.NewString()
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithField("request_id", id).Warnf("upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		h:      h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		creds:  orderservice.CredentialsFromRequest(r),
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		log:    h.log.WithField("session", id),
	}
	if !h.register(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		cancel()
		return
	}
	s.log.Debug("session opened")

	go s.writePump()
	go s.readPump()
}

func (h *Handler) register(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	h.wg.Add(2)
	return true
}

func (h *Handler) unregister(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

// Count returns the number of open sessions.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown refuses new sessions, asks open ones to close and waits for them.
// Sessions still open when ctx ends are closed forcibly.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	open := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.goingAway()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, s := range open {
			_ = s.conn.Close()
		}
		<-done
		return ctx.Err()
	}
}
