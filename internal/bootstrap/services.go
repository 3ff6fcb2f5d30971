// Package bootstrap builds the service graph from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomato-app/tomato-support/agents/support"
	"github.com/tomato-app/tomato-support/config"
	"github.com/tomato-app/tomato-support/llm"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/memory"
	"github.com/tomato-app/tomato-support/orderservice"
	"github.com/tomato-app/tomato-support/resilience"
	"github.com/tomato-app/tomato-support/store"
	"github.com/tomato-app/tomato-support/store/memstore"
	"github.com/tomato-app/tomato-support/store/mongostore"
)

// Breaker settings for remote collaborators.
const (
	breakerFailures = 5
	breakerCooldown = 30 * time.Second
)

// Services is the wired application. Collaborators that are not configured
// stay nil.
type Services struct {
	Config *config.EnvConfig
	Agent  *support.Agent
	Menu   store.MenuStore
	Orders store.OrderStore
	Cart   *orderservice.Client
	LLM    llm.Client
	Memory memory.Store
	Log    *logger.Logger

	closers []func(context.Context) error
}

// Build connects every configured collaborator. Optional ones that fail to
// come up (language model without a key, unreachable Redis) are left out
// with a warning; a misconfigured store or routes file is an error.
func Build(ctx context.Context, cfg *config.EnvConfig, log *logger.Logger) (*Services, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Services{Config: cfg, Log: log}

	if err := s.openStore(ctx); err != nil {
		return nil, err
	}
	if err := s.openLLM(ctx); err != nil {
		s.Close(ctx)
		return nil, err
	}
	s.openMemory(ctx)
	if err := s.openCart(); err != nil {
		s.Close(ctx)
		return nil, err
	}

	deps := support.Deps{
		Menu:   s.Menu,
		Orders: s.Orders,
		LLM:    s.LLM,
		Memory: s.Memory,
		Log:    log,
	}
	if s.Cart != nil {
		deps.Cart = s.Cart
	}
	s.Agent = support.New(support.Config{
		MaxPopular:    cfg.MaxPopular,
		MaxRecent:     cfg.MaxRecent,
		ForceRewrite:  cfg.ForceRewrite,
		DBTimeout:     cfg.DBTimeout,
		LLMTimeout:    cfg.LLMTimeout,
		MemoryTimeout: cfg.MemoryTimeout,
	}, deps)
	return s, nil
}

func (s *Services) openStore(ctx context.Context) error {
	cfg := s.Config
	switch cfg.Store {
	case config.StoreMongo:
		ms, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.DBName, cfg.DBTimeout, s.Log)
		if err != nil {
			return fmt.Errorf("open menu store: %w", err)
		}
		s.Menu, s.Orders = ms, ms
		s.closers = append(s.closers, ms.Close)
		s.Log.WithField("db", cfg.DBName).Info("connected to mongo")
	case config.StoreMemory:
		ms := memstore.New()
		s.Menu, s.Orders = ms, ms
		s.Log.Info("using in-process menu store")
	default:
		s.Log.Warn("no menu store configured")
	}
	return nil
}

func (s *Services) openLLM(ctx context.Context) error {
	cfg := s.Config
	c, err := llm.New(ctx, llm.Config{
		Provider:  cfg.LLMProvider,
		APIKey:    cfg.LLMAPIKey(),
		Model:     cfg.LLMModel,
		BaseURL:   cfg.LLMBaseURL,
		Timeout:   cfg.LLMTimeout,
		MaxTokens: cfg.LLMMaxTokens,
		Trace:     cfg.LLMTrace,
	}, s.Log)
	if errors.Is(err, llm.ErrLLMDisabled) {
		s.Log.Warn("language model disabled: no API key")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open language model: %w", err)
	}
	s.LLM = llm.Guard(c, s.breaker("llm", nil))
	return nil
}

func (s *Services) openMemory(ctx context.Context) {
	cfg := s.Config
	if !cfg.UseMemory {
		return
	}
	rs := memory.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pctx, cancel := context.WithTimeout(ctx, cfg.MemoryTimeout)
	defer cancel()
	if err := rs.Ping(pctx); err != nil {
		s.Log.Warnf("memory disabled: %v", err)
		_ = rs.Close()
		return
	}
	s.Memory = rs
	s.closers = append(s.closers, func(context.Context) error { return rs.Close() })
}

func (s *Services) openCart() error {
	cfg := s.Config
	if cfg.OrderServiceURL == "" {
		s.Log.Warn("order service not configured; cart actions disabled")
		return nil
	}
	routes, err := config.LoadRoutes(cfg.OrderRoutesFile)
	if err != nil {
		return err
	}
	var resolver orderservice.NameResolver
	if s.Menu != nil {
		resolver = s.Menu
	}
	client, err := orderservice.New(orderservice.Config{
		BaseURL:     cfg.OrderServiceURL,
		AuthHeader:  cfg.OrderAuthHeader,
		RequireAuth: cfg.OrderRequireAuth,
		Timeout:     cfg.OrderTimeout,
		Routes:      routes,
	}, nil, resolver, s.breaker("orderservice", orderservice.IsOutage), s.Log)
	if err != nil {
		return fmt.Errorf("open order service client: %w", err)
	}
	s.Cart = client
	return nil
}

func (s *Services) breaker(name string, isFailure func(error) bool) *resilience.Breaker {
	opts := []resilience.Option{
		resilience.WithStateChange(func(name string, from, to resilience.State) {
			s.Log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		}),
	}
	if isFailure != nil {
		opts = append(opts, resilience.WithFailurePredicate(isFailure))
	}
	return resilience.New(name, breakerFailures, breakerCooldown, opts...)
}

// Seed upserts the seed menu when the store holds fewer than
// store.BootstrapThreshold items. It returns how many items were added.
func (s *Services) Seed(ctx context.Context) (int, error) {
	if s.Menu == nil {
		return 0, store.ErrUnavailable
	}
	n, err := s.Menu.Bootstrap(ctx, store.SeedMenu())
	if err != nil {
		return 0, fmt.Errorf("seed menu: %w", err)
	}
	if n > 0 {
		s.Log.WithField("items", n).Info("seeded menu")
	}
	return n, nil
}

// DB is the menu store as a health pinger, or nil.
func (s *Services) DB() interface{ Ping(context.Context) error } {
	if s.Menu == nil {
		return nil
	}
	return s.Menu
}

// OrderServiceURL is the configured order service, or "".
func (s *Services) OrderServiceURL() string {
	if s.Cart == nil {
		return ""
	}
	return s.Cart.BaseURL()
}

// Close waits for background memory writes and releases connections.
func (s *Services) Close(ctx context.Context) {
	if s.Agent != nil {
		s.Agent.Wait()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.Log.Warnf("close: %v", err)
		}
	}
	s.closers = nil
}
