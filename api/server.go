// Package api is the HTTP shell of the support service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/tomato-app/tomato-support/agents/support"
	"github.com/tomato-app/tomato-support/logger"
)

// Version is reported by /health.
const Version = "1.3.3"

// ServiceName is reported by /.
const ServiceName = "Tomato Chatbot API"

// Agent answers chat turns.
type Agent interface {
	Handle(ctx context.Context, turn support.Turn) (support.Reply, error)
	MemoryEnabled() bool
	ModelName() string
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the server.
type Options struct {
	SharedSecret    string
	MaxMsgLen       int
	AllowedOrigins  []string
	RateLimitRPS    float64
	RateLimitBurst  int
	DBName          string
	DB              Pinger
	OrderServiceURL string
	Sockets         http.Handler
	Log             *logger.Logger
}

// Server routes requests to the agent.
type Server struct {
	router  *chi.Mux
	agent   Agent
	opts    Options
	chat    *chatValidator
	limiter *RateLimiter
	log     *logger.Logger
}

// NewServer builds the router. Call Close to stop the rate limiter's
// background sweep.
func NewServer(agent Agent, opts Options) (*Server, error) {
	if opts.MaxMsgLen <= 0 {
		opts.MaxMsgLen = 2000
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	log := opts.Log
	if log == nil {
		log = logger.GetLogger()
	}
	chat, err := newChatValidator(opts.MaxMsgLen)
	if err != nil {
		return nil, err
	}
	s := &Server{
		router: chi.NewRouter(),
		agent:  agent,
		opts:   opts,
		chat:   chat,
		log:    log.WithField("component", "api"),
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderServiceAuth, HeaderRequestID, "token", "x-forwarded-cookie"},
		ExposedHeaders:   []string{HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/__routes", s.handleRoutes)

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(s.requireSecret)
		r.Post("/chat", s.handleChat)
		if s.opts.Sockets != nil {
			r.Handle("/ws", s.opts.Sockets)
		}
	})
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// HTTPServer wraps the router in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
