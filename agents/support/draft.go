package support

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/tomato-app/tomato-support/internal/textmatch"
	"github.com/tomato-app/tomato-support/logger"
)

// ErrUngrounded marks a model output that mentions something the draft and
// the menu do not support.
var ErrUngrounded = errors.New("support: output not grounded in draft")

// Draft is the deterministic reply of a branch. Grounded drafts are built
// from menu data and may be restyled by the language model; all others are
// returned verbatim.
type Draft struct {
	Text     string
	Grounded bool
	Names    []string
}

func plain(text string) Draft { return Draft{Text: text} }

func grounded(text string, names []string) Draft {
	return Draft{Text: text, Grounded: true, Names: names}
}

const rewriteSystem = `You rewrite customer-support replies for Tomato, a food delivery service.
Rewrite the draft so it reads naturally and warmly in at most three sentences.
Rules:
1. Mention only dishes from the menu vocabulary, spelled exactly as listed.
2. Never add dishes, ingredients, prices, discounts, delivery times or policies that are not in the draft.
3. Keep every price exactly as written in the draft.
4. Reply with the rewritten text only.`

// rewrite restyles a grounded draft. The draft comes back unchanged when
// rewriting is off, the model fails, or the output does not pass
// CheckGrounding.
func (a *Agent) rewrite(ctx context.Context, log *logger.Logger, d Draft, vocab []string) string {
	if !a.cfg.ForceRewrite || a.llm == nil {
		return d.Text
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.LLMTimeout)
	defer cancel()

	prompt := fmt.Sprintf("Menu vocabulary: %s\n\nDraft: %s", strings.Join(vocab, ", "), d.Text)
	out, err := a.llm.Chat(ctx, rewriteSystem, prompt)
	if err != nil {
		log.Warnf("rewrite skipped: %v", err)
		return d.Text
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return d.Text
	}
	if err := CheckGrounding(out, d, vocab); err != nil {
		log.Warnf("rewrite rejected: %v", err)
		return d.Text
	}
	return out
}

var priceRe = regexp.MustCompile(`\$\s?(\d+(?:\.\d+)?)`)

// headNouns end a dish mention. Stored stemmed.
var headNouns = stemSet(
	"salad", "roll", "sandwich", "cake", "pasta", "noodle", "cream", "mushroom",
	"cauliflower", "pulao", "zucchini", "pizza", "burger", "soup", "curry",
	"wrap", "taco", "sushi", "biryani", "fries", "cupcake", "pie", "brownie",
)

// breakers stop the lookback from a head noun: function words, common verbs
// and praise adjectives that often precede a dish without being part of it.
var breakers = stemSet(
	"a", "an", "the", "and", "or", "of", "with", "our", "your", "my", "their",
	"this", "that", "these", "those", "is", "are", "was", "were", "be", "to",
	"for", "in", "on", "at", "from", "by", "as", "it", "its", "we", "you", "i",
	"x", "some", "any", "also", "plus", "but", "if", "so", "like", "love",
	"try", "recommend", "suggest", "enjoy", "order", "ordered", "get", "have",
	"has", "want", "add", "added", "include", "includes", "such", "then",
	"delicious", "tasty", "fresh", "great", "popular", "favorite", "favourite",
	"signature", "classic", "best", "top", "new", "yummy", "amazing", "lovely",
	"perfect", "warm", "cold", "hot", "more", "other", "each", "every", "one",
	"two", "three", "ever", "very", "too", "all", "both", "not", "no",
	"grab", "pick", "serve", "serves", "offer", "offers", "pair", "fancy",
	"craving", "check", "out", "see", "taste", "need", "would", "could", "can",
	"will", "may", "might", "should", "just", "only", "really", "here", "there",
	"what", "which", "how", "about", "sure", "definitely", "absolutely",
	"don't", "doesn't", "isn't", "aren't", "today", "tonight", "now",
)

const maxMention = 4

// properNouns may be capitalized without naming a dish.
var properNouns = stemSet(
	"i", "i'm", "i'll", "i've", "i'd", "ok", "okay", "tomato", "tomatoai",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december",
)

// CheckGrounding verifies a rewritten reply against its draft and the menu
// vocabulary. Every dollar amount in output must occur in the draft. Every
// dish mention, a run of words ending in a dish noun, must be a bare dish
// noun or the tail of a menu name. Every run of capitalized words must occur
// in a menu name or in the draft.
func CheckGrounding(output string, d Draft, vocab []string) error {
	allowed := map[float64]bool{}
	for _, m := range priceRe.FindAllStringSubmatch(d.Text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			allowed[v] = true
		}
	}
	for _, m := range priceRe.FindAllStringSubmatch(output, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || !allowed[v] {
			return fmt.Errorf("%w: price %s", ErrUngrounded, m[0])
		}
	}

	names := make([][]string, 0, len(vocab))
	for _, n := range vocab {
		if w := stemWords(n); len(w) > 0 {
			names = append(names, w)
		}
	}
	for _, mention := range mentions(output) {
		if !knownMention(mention, names) {
			return fmt.Errorf("%w: %q", ErrUngrounded, strings.Join(mention, " "))
		}
	}

	known := append(names, stemWords(d.Text))
	for _, run := range namedRuns(output) {
		if knownRun(run.words, known) {
			continue
		}
		// the first word of a sentence is capitalized anyway
		if run.opening && (len(run.words) == 1 || knownRun(run.words[1:], known)) {
			continue
		}
		return fmt.Errorf("%w: %q", ErrUngrounded, strings.Join(run.words, " "))
	}
	return nil
}

type namedRun struct {
	words   []string
	opening bool
}

// namedRuns returns the runs of capitalized words in text, stemmed. Spaces
// and hyphens join a run; any other punctuation ends it.
func namedRuns(text string) []namedRun {
	var (
		out     []namedRun
		cur     namedRun
		word    []rune
		opening = true
	)
	flush := func() {
		if len(cur.words) > 0 {
			out = append(out, cur)
		}
		cur = namedRun{}
	}
	endWord := func() {
		if len(word) == 0 {
			return
		}
		if unicode.IsUpper(word[0]) {
			if len(cur.words) == 0 {
				cur.opening = opening
			}
			w := strings.TrimSuffix(textmatch.Normalize(string(word)), "'s")
			cur.words = append(cur.words, stem(w))
		} else {
			flush()
		}
		opening = false
		word = word[:0]
	}
	for _, r := range text {
		switch {
		case r == '’':
			word = append(word, '\'')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			word = append(word, r)
		case r == ' ' || r == '\t' || r == '-':
			endWord()
		default:
			endWord()
			flush()
			if strings.ContainsRune(".!?:\n", r) {
				opening = true
			}
		}
	}
	endWord()
	flush()
	return out
}

func knownRun(run []string, names [][]string) bool {
	if len(run) == 1 && properNouns[run[0]] {
		return true
	}
	for _, name := range names {
		if containsRun(name, run) {
			return true
		}
	}
	return false
}

func containsRun(words, run []string) bool {
	for off := 0; off+len(run) <= len(words); off++ {
		if hasSuffix(words[:off+len(run)], run) {
			return true
		}
	}
	return false
}

// mentions returns the stemmed dish mentions of text. Punctuation ends a
// clause and a mention never crosses it.
func mentions(text string) [][]string {
	var out [][]string
	clauses := strings.FieldsFunc(textmatch.Normalize(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '\'' || r == '-')
	})
	for _, clause := range clauses {
		words := stemWords(clause)
		for i, w := range words {
			if !headNouns[w] {
				continue
			}
			start := i
			for j := i - 1; j >= 0 && i-j < maxMention; j-- {
				if breakers[words[j]] || headNouns[words[j]] || isNumber(words[j]) {
					break
				}
				start = j
			}
			out = append(out, words[start:i+1])
		}
	}
	return out
}

func knownMention(mention []string, names [][]string) bool {
	if len(mention) == 1 {
		return true
	}
	for _, name := range names {
		if hasSuffix(name, mention) {
			return true
		}
	}
	return false
}

func hasSuffix(words, suffix []string) bool {
	if len(suffix) > len(words) {
		return false
	}
	off := len(words) - len(suffix)
	for i, w := range suffix {
		if words[off+i] != w {
			return false
		}
	}
	return true
}

func stemWords(s string) []string {
	words := strings.FieldsFunc(textmatch.Normalize(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
	for i, w := range words {
		words[i] = stem(w)
	}
	return words
}

// stem folds the plural forms that matter for dish names.
func stem(w string) string {
	switch {
	case strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "shes"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "ss"):
		return w
	case len(w) > 3 && strings.HasSuffix(w, "s"):
		return strings.TrimSuffix(w, "s")
	}
	return w
}

func stemSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[stem(w)] = true
	}
	return m
}

func isNumber(w string) bool {
	_, err := strconv.ParseFloat(w, 64)
	return err == nil
}
