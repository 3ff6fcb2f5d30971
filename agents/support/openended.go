package support

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/tomato-app/tomato-support/logger"
)

// SystemPrompt frames every open-ended answer.
const SystemPrompt = "You are TomatoAI, a concise, friendly customer support chatbot for a food delivery platform. " +
	"You help with menus, delivery times, tracking orders, refunds, and reorders.\n\n" +
	"Rules:\n" +
	"1) Use ONLY details from the provided database context for specifics like dish names, order IDs, or status.\n" +
	"2) If a specific detail is missing, ask ONE brief clarifying question or provide a safe generic step (e.g., how to check order status in-app).\n" +
	"3) Never invent order numbers, times, or policies. No markdown tables; short paragraphs or bullets only.\n" +
	"4) Keep answers under ~120 words unless the user explicitly asks for more.\n"

const (
	memoryHits    = 5
	memoryLineLen = 160
	fallbackShown = 10
)

// contextSections lists the per-category blocks of the grounding context in
// the order they are rendered.
var contextSections = []struct {
	category string
	title    string
}{
	{"sandwich", "Sandwich options"},
	{"rolls", "Rolls options"},
	{"salad", "Salad options"},
	{"desserts", "Dessert options"},
	{"cake", "Cake options"},
	{"pasta", "Pasta options"},
	{"noodles", "Noodles options"},
	{"veg", "Veg options"},
}

// groundingContext is what the open-ended answer may draw on.
type groundingContext struct {
	memory     []string
	popular    []string
	recent     []string
	categories [][]string
}

func (g groundingContext) String() string {
	var parts []string
	if len(g.memory) > 0 {
		parts = append(parts, "Relevant past information:\n"+strings.Join(g.memory, "\n"))
	}
	if len(g.popular) > 0 {
		parts = append(parts, "Popular dishes: "+strings.Join(g.popular, ", "))
	}
	if len(g.recent) > 0 {
		parts = append(parts, "User recent orders: "+strings.Join(g.recent, ", "))
	}
	for i, names := range g.categories {
		if len(names) > 0 {
			parts = append(parts, contextSections[i].title+": "+strings.Join(names, ", "))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Database context:\n" + strings.Join(parts, "\n") + "\n"
}

// gather loads the grounding lists concurrently. Every lookup is best effort;
// a failing source just leaves its section out.
func (a *Agent) gather(ctx context.Context, log *logger.Logger, turn Turn) groundingContext {
	g := groundingContext{categories: make([][]string, len(contextSections))}
	eg, ctx := errgroup.WithContext(ctx)

	if a.memory != nil && turn.UserID != "" {
		eg.Go(func() error {
			mctx, cancel := context.WithTimeout(ctx, a.cfg.MemoryTimeout)
			defer cancel()
			hits, err := a.memory.Search(mctx, turn.UserID, turn.Message, memoryHits)
			if err != nil {
				log.Debugf("memory search skipped: %v", err)
				return nil
			}
			for _, h := range hits {
				if h = strings.TrimSpace(h); h != "" {
					g.memory = append(g.memory, "- "+clip(h, memoryLineLen))
				}
			}
			return nil
		})
	}
	if a.menu != nil {
		eg.Go(func() error {
			dctx, cancel := a.dbContext(ctx)
			defer cancel()
			names, err := a.menu.TopByPopularity(dctx, "", a.cfg.MaxPopular)
			if err != nil {
				log.Warnf("popular dishes: %v", err)
				return nil
			}
			g.popular = names
			return nil
		})
		for i, sec := range contextSections {
			eg.Go(func() error {
				dctx, cancel := a.dbContext(ctx)
				defer cancel()
				names, err := a.menu.ListByCategory(dctx, sec.category, a.cfg.MaxPopular)
				if err != nil {
					log.Warnf("%s: %v", sec.title, err)
					return nil
				}
				g.categories[i] = names
				return nil
			})
		}
	}
	if a.orders != nil && turn.UserID != "" {
		eg.Go(func() error {
			dctx, cancel := a.dbContext(ctx)
			defer cancel()
			ids, err := a.orders.RecentOrderIDs(dctx, turn.UserID, a.cfg.MaxRecent)
			if err != nil {
				log.Warnf("recent order ids: %v", err)
				return nil
			}
			g.recent = ids
			return nil
		})
	}
	_ = eg.Wait()
	return g
}

func (a *Agent) openEnded(ctx context.Context, log *logger.Logger, turn Turn, vocab []string) (Draft, error) {
	if a.llm == nil {
		popular := a.topItems(ctx, log, "", fallbackShown)
		if len(popular) == 0 {
			return Draft{}, ErrUnavailable
		}
		return plain("I’m temporarily offline. Popular dishes: " + strings.Join(popular, ", ") + "."), nil
	}

	g := a.gather(ctx, log, turn)
	dbContext := g.String()
	prompt := dbContext + "\nCustomer: " + turn.Message + "\nSupport Agent:"

	lctx, cancel := context.WithTimeout(ctx, a.cfg.LLMTimeout)
	defer cancel()
	answer, err := a.llm.Chat(lctx, SystemPrompt, prompt)
	answer = strings.TrimSpace(answer)
	if err != nil || answer == "" {
		if err != nil {
			log.Error("assistant call failed", err)
		}
		return a.upstreamFallback(ctx, log), nil
	}
	if err := CheckGrounding(answer, Draft{Text: dbContext}, vocab); err != nil {
		log.Warnf("open-ended answer rejected: %v", err)
		return a.upstreamFallback(ctx, log), nil
	}
	return plain(answer), nil
}

func (a *Agent) upstreamFallback(ctx context.Context, log *logger.Logger) Draft {
	popular := a.topItems(ctx, log, "", fallbackShown)
	if len(popular) == 0 {
		return plain("I’m having trouble reaching the assistant right now. Please try again in a moment.")
	}
	return plain("I’m having trouble reaching the assistant. Popular dishes: " + strings.Join(popular, ", ") + ".")
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
