// Package memory is the long-term conversation memory used to ground
// open-ended replies. It is never on the critical path: callers treat every
// error as a miss.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/tomato-app/tomato-support/internal/textmatch"
)

// Entry is one remembered turn.
type Entry struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Store keeps per-user entries.
type Store interface {
	// Search returns up to limit remembered texts relevant to query, best first.
	Search(ctx context.Context, userID, query string, limit int) ([]string, error)
	Append(ctx context.Context, userID string, entries ...Entry) error
	Ping(ctx context.Context) error
	Close() error
}

// Noop remembers nothing.
type Noop struct{}

func (Noop) Search(context.Context, string, string, int) ([]string, error) { return nil, nil }
func (Noop) Append(context.Context, string, ...Entry) error                { return nil }
func (Noop) Ping(context.Context) error                                    { return nil }
func (Noop) Close() error                                                  { return nil }

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "you": true, "your": true, "are": true,
	"what": true, "how": true, "can": true, "have": true, "with": true, "this": true,
	"that": true, "about": true, "please": true, "there": true,
}

func terms(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range textmatch.Words(s) {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// Score is the share of query terms that occur in text.
func Score(query, text string) float64 {
	q := terms(query)
	if len(q) == 0 {
		return 0
	}
	t := terms(text)
	hit := 0
	for w := range q {
		if t[w] {
			hit++
		}
	}
	return float64(hit) / float64(len(q))
}

// Rank orders entries by Score against query, newest first on ties, and
// keeps those with a positive score.
func Rank(query string, entries []Entry, limit int) []string {
	type scored struct {
		e     Entry
		score float64
		idx   int
	}
	var list []scored
	for i, e := range entries {
		if s := Score(query, e.Text); s > 0 {
			list = append(list, scored{e, s, i})
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].idx > list[j].idx
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = strings.TrimSpace(s.e.Text)
	}
	return out
}
