package store

import (
	"sort"
	"strings"

	"github.com/tomato-app/tomato-support/internal/textmatch"
)

const (
	// SimilarityFloor is the minimum score for a fuzzy candidate.
	SimilarityFloor = 0.55
	// ConfidentMatch is the score at or above which the top candidate is
	// taken without asking the user.
	ConfidentMatch = 0.88
	// DefaultTopK bounds the candidates returned by a fuzzy search.
	DefaultTopK = 5
)

// RankMatches ranks catalog against query. An exact case-insensitive name
// match returns that item alone with score 1. Otherwise items whose name or
// description contains the query are scored, or the whole catalog when none
// do; the score is the better of the name and description ratios.
func RankMatches(query string, catalog []MenuItem, k int) []Match {
	q := textmatch.Normalize(query)
	if q == "" {
		return nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	for _, it := range catalog {
		if textmatch.Normalize(it.Name) == q {
			return []Match{{Item: it, Score: 1}}
		}
	}

	candidates := make([]MenuItem, 0, len(catalog))
	for _, it := range catalog {
		if strings.Contains(textmatch.Normalize(it.Name), q) || strings.Contains(textmatch.Normalize(it.Description), q) {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		candidates = catalog
	}

	var out []Match
	for _, it := range candidates {
		score := textmatch.Ratio(q, textmatch.Normalize(it.Name))
		if it.Description != "" {
			if d := textmatch.Ratio(q, textmatch.Normalize(it.Description)); d > score {
				score = d
			}
		}
		if score >= SimilarityFloor {
			out = append(out, Match{Item: it, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Item.Name < out[j].Item.Name
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// NeedsDisambiguation reports whether the user must pick among matches.
func NeedsDisambiguation(matches []Match) bool {
	return len(matches) > 1 && matches[0].Score < ConfidentMatch
}
