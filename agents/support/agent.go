// Package support is the Tomato customer-support agent. Each turn is
// classified into one intent, the branch for that intent gathers what it
// needs from the menu store, the order history, the remote cart service or
// the language model, and a single reply string comes back.
package support

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomato-app/tomato-support/intent"
	"github.com/tomato-app/tomato-support/llm"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/memory"
	"github.com/tomato-app/tomato-support/orderservice"
	"github.com/tomato-app/tomato-support/store"
)

// ErrUnavailable is returned when the agent has nothing at all to say: no
// language model and no menu data to fall back on.
var ErrUnavailable = errors.New("support: assistant temporarily unavailable")

var tracer = otel.Tracer("tomato/support")

// CartService is the remote cart and order collaborator.
type CartService interface {
	RequiresAuth() bool
	AddToCart(ctx context.Context, creds orderservice.Credentials, userID string, item store.MenuItem, qty int) error
	RemoveFromCart(ctx context.Context, creds orderservice.Credentials, userID string, item store.MenuItem, qty int) error
	GetCart(ctx context.Context, creds orderservice.Credentials, userID string) (orderservice.Cart, error)
	ClearCart(ctx context.Context, creds orderservice.Credentials, userID string) (orderservice.ClearStrategy, error)
	Checkout(ctx context.Context, creds orderservice.Credentials, userID string, req orderservice.CheckoutRequest) (orderservice.CheckoutResult, error)
	Confirm(ctx context.Context, creds orderservice.Credentials, userID, ref string) (orderservice.Confirmation, error)
}

// Config tunes the agent.
type Config struct {
	MaxPopular    int
	MaxRecent     int
	ForceRewrite  bool
	DBTimeout     time.Duration
	LLMTimeout    time.Duration
	MemoryTimeout time.Duration
}

// Deps are the agent's collaborators. Any of them may be nil; the branches
// that need a missing one answer with a degraded message.
type Deps struct {
	Menu   store.MenuStore
	Orders store.OrderStore
	Cart   CartService
	LLM    llm.Client
	Memory memory.Store
	Log    *logger.Logger
}

// Turn is one inbound message.
type Turn struct {
	Message     string
	UserID      string
	Credentials orderservice.Credentials
	RequestID   string
}

// Reply is the agent's answer with the intent that produced it.
type Reply struct {
	Text   string
	Intent intent.Kind
}

// Agent answers support turns. It is safe for concurrent use.
type Agent struct {
	cfg    Config
	menu   store.MenuStore
	orders store.OrderStore
	cart   CartService
	llm    llm.Client
	memory memory.Store
	log    *logger.Logger

	pending sync.WaitGroup
}

// New builds an agent. Zero config fields take the service defaults.
func New(cfg Config, deps Deps) *Agent {
	if cfg.MaxPopular <= 0 {
		cfg.MaxPopular = 5
	}
	if cfg.MaxRecent <= 0 {
		cfg.MaxRecent = 5
	}
	if cfg.DBTimeout <= 0 {
		cfg.DBTimeout = 3 * time.Second
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 10 * time.Second
	}
	if cfg.MemoryTimeout <= 0 {
		cfg.MemoryTimeout = 2 * time.Second
	}
	log := deps.Log
	if log == nil {
		log = logger.GetLogger()
	}
	return &Agent{
		cfg:    cfg,
		menu:   deps.Menu,
		orders: deps.Orders,
		cart:   deps.Cart,
		llm:    deps.LLM,
		memory: deps.Memory,
		log:    log.WithField("component", "support"),
	}
}

// Handle answers one turn. Only ErrUnavailable is returned as an error;
// every other failure becomes reply text.
func (a *Agent) Handle(ctx context.Context, turn Turn) (Reply, error) {
	ctx, span := tracer.Start(ctx, "support.Agent.Handle",
		trace.WithAttributes(attribute.Bool("user.known", turn.UserID != "")))
	defer span.End()

	turn.Message = strings.TrimSpace(turn.Message)
	log := a.log.WithField("request_id", turn.RequestID)

	vocab := a.vocabulary(ctx, log)
	in := intent.Classify(intent.Input{Text: turn.Message, Menu: vocab})
	span.SetAttributes(attribute.String("intent", in.Kind().String()))
	log.WithField("intent", in.Kind().String()).Debug("classified")

	d, err := a.dispatch(ctx, log, turn, in, vocab)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}
	text := d.Text
	if d.Grounded {
		text = a.rewrite(ctx, log, d, vocab)
	}
	a.remember(log, turn, text)
	return Reply{Text: text, Intent: in.Kind()}, nil
}

func (a *Agent) dispatch(ctx context.Context, log *logger.Logger, turn Turn, in intent.Intent, vocab []string) (Draft, error) {
	ctx, span := tracer.Start(ctx, "support.branch."+in.Kind().String())
	defer span.End()

	switch v := in.(type) {
	case intent.PaymentError:
		return a.paymentError(v), nil
	case intent.PaymentStatus:
		return a.paymentStatus(ctx, log, turn, v), nil
	case intent.OrderHistory:
		return a.orderHistory(ctx, log, turn), nil
	case intent.ClearCart:
		return a.clearCart(ctx, log, turn), nil
	case intent.ShowCart:
		return a.showCart(ctx, log, turn), nil
	case intent.Checkout:
		return a.checkout(ctx, log, turn, v), nil
	case intent.ConfirmPayment:
		return a.confirmPayment(ctx, log, turn, v), nil
	case intent.AddItems:
		return a.addItems(ctx, log, turn, v), nil
	case intent.RemoveItems:
		return a.removeItems(ctx, log, turn, v), nil
	case intent.Popularity:
		return a.popularity(ctx, log, v), nil
	case intent.ItemDetail:
		return a.itemDetail(ctx, log, v), nil
	case intent.CategoryListing:
		return a.categoryListing(ctx, log, v), nil
	case intent.OpenEnded:
		return a.openEnded(ctx, log, turn, vocab)
	}
	return a.openEnded(ctx, log, turn, vocab)
}

// vocabulary is the closed set of menu names, or nil when the store is
// missing or failing.
func (a *Agent) vocabulary(ctx context.Context, log *logger.Logger) []string {
	if a.menu == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.DBTimeout)
	defer cancel()
	names, err := a.menu.ListAllNames(ctx, 0)
	if err != nil {
		log.Error("load menu vocabulary", err)
		return nil
	}
	return names
}

// Wait blocks until pending memory writes finish.
func (a *Agent) Wait() {
	a.pending.Wait()
}

// remember mirrors the turn into long-term memory in the background. It
// never affects the reply; failures are logged at debug level.
func (a *Agent) remember(log *logger.Logger, turn Turn, reply string) {
	if a.memory == nil || turn.UserID == "" || reply == "" {
		return
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.MemoryTimeout)
		defer cancel()
		now := time.Now().UTC()
		err := a.memory.Append(ctx, turn.UserID,
			memory.Entry{Role: "user", Text: turn.Message, At: now},
			memory.Entry{Role: "assistant", Text: reply, At: now},
		)
		if err != nil {
			log.Debugf("memory append dropped: %v", err)
		}
	}()
}

// MemoryEnabled reports whether a memory store is wired.
func (a *Agent) MemoryEnabled() bool {
	if a.memory == nil {
		return false
	}
	_, noop := a.memory.(memory.Noop)
	return !noop
}

// ModelName names the configured language model, or "" when none.
func (a *Agent) ModelName() string {
	if a.llm == nil {
		return ""
	}
	return llm.Name(a.llm)
}

func (a *Agent) dbContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.DBTimeout)
}
