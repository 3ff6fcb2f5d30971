// Package knowledge is the static payment-error knowledge base. It recognizes
// provider error vocabulary in free text and turns it into a short plain
// explanation that always ends with the same next-steps sentence.
package knowledge

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// MaxReplyLen bounds an explanation, next-steps sentence included.
	MaxReplyLen = 700

	// NextSteps closes every explanation.
	NextSteps = "Next steps: try a different card or payment method, or contact your bank, then reach out to support with your order ID if it keeps happening."

	playbook = "I couldn't match that to a specific payment code. The most common causes are insufficient funds, an expired card, a wrong security code or a bank blocking the charge as unusual activity."
)

var (
	providerVocab = []string{"stripe", "payment_intent", "decline_code", "error_code", "error code", "declinecode"}
	structuredRe  = regexp.MustCompile(`(?i)\b(code|error_code|decline_code|type|status)"?\s*[:=]\s*"?([a-z_]+)`)
)

// Findings are the knowledge-base keys detected in a text, in order of first
// appearance.
type Findings struct {
	ErrorTypes     []string
	ErrorCodes     []string
	DeclineCodes   []string
	IntentStatuses []string
	Vocabulary     bool
}

// Empty reports whether nothing was detected.
func (f Findings) Empty() bool {
	return len(f.ErrorTypes)+len(f.ErrorCodes)+len(f.DeclineCodes)+len(f.IntentStatuses) == 0 && !f.Vocabulary
}

// Triggered reports whether the findings identify a raw payment error. Plain
// status words such as "processing" count only together with other evidence.
func (f Findings) Triggered() bool {
	if len(f.ErrorTypes)+len(f.ErrorCodes)+len(f.DeclineCodes) > 0 || f.Vocabulary {
		return true
	}
	for _, s := range f.IntentStatuses {
		if strings.Contains(s, "_") {
			return true
		}
	}
	return false
}

// Detect scans text for knowledge-base keys and structured field: value pairs.
func Detect(text string) Findings {
	lower := strings.ToLower(text)
	f := Findings{
		ErrorTypes:     matchKeys(lower, errorTypes),
		ErrorCodes:     matchKeys(lower, errorCodes),
		DeclineCodes:   matchKeys(lower, declineCodes),
		IntentStatuses: matchKeys(lower, intentStatuses),
	}
	for _, v := range providerVocab {
		if strings.Contains(lower, v) {
			f.Vocabulary = true
			break
		}
	}
	for _, m := range structuredRe.FindAllStringSubmatch(lower, -1) {
		field, value := m[1], m[2]
		switch {
		case field == "decline_code":
			f.DeclineCodes = appendKnown(f.DeclineCodes, declineCodes, value)
		case field == "type":
			f.ErrorTypes = appendKnown(f.ErrorTypes, errorTypes, value)
		case field == "status":
			f.IntentStatuses = appendKnown(f.IntentStatuses, intentStatuses, value)
		default:
			f.ErrorCodes = appendKnown(f.ErrorCodes, errorCodes, value)
			f.DeclineCodes = appendKnown(f.DeclineCodes, declineCodes, value)
		}
	}
	return f
}

// Triggers is shorthand for Detect(text).Triggered().
func Triggers(text string) bool {
	return Detect(text).Triggered()
}

// Explain composes the reply for a raw error blob.
func Explain(text string) string {
	return compose(Detect(text))
}

// ExplainCodes explains stored provider codes. ok is false when neither code
// is known.
func ExplainCodes(errorCode, declineCode string) (string, bool) {
	var f Findings
	f.ErrorCodes = appendKnown(nil, errorCodes, strings.ToLower(strings.TrimSpace(errorCode)))
	f.ErrorTypes = appendKnown(nil, errorTypes, strings.ToLower(strings.TrimSpace(errorCode)))
	f.DeclineCodes = appendKnown(nil, declineCodes, strings.ToLower(strings.TrimSpace(declineCode)))
	if len(f.ErrorCodes)+len(f.ErrorTypes)+len(f.DeclineCodes) == 0 {
		return "", false
	}
	return compose(f), true
}

func compose(f Findings) string {
	var body string
	switch {
	case declineWins(f):
		body = cite(f.DeclineCodes[0], declineCodes)
	case len(f.ErrorCodes) > 0:
		body = cite(f.ErrorCodes[0], errorCodes)
	case len(f.ErrorTypes) > 0:
		body = cite(f.ErrorTypes[0], errorTypes)
	}
	if len(f.IntentStatuses) > 0 {
		status := intentStatuses[f.IntentStatuses[0]]
		if body == "" {
			body = status
		} else {
			body += " Payment status: " + status
		}
	}
	if body == "" {
		body = playbook
	}
	return truncate(body, MaxReplyLen-utf8.RuneCountInString(NextSteps)-1) + " " + NextSteps
}

// cite leads with the provider's own code so the user can quote it.
func cite(key string, table map[string]string) string {
	return key + ": " + table[key]
}

// declineWins gives the issuer's decline code precedence when the error code
// is the generic card_declined or no other error code was found.
func declineWins(f Findings) bool {
	if len(f.DeclineCodes) == 0 {
		return false
	}
	other := false
	for _, c := range f.ErrorCodes {
		if c == "card_declined" {
			return true
		}
		if _, dup := declineCodes[c]; !dup {
			other = true
		}
	}
	return !other
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit-1])) + "…"
}

type hit struct {
	key string
	pos int
}

// matchKeys returns the keys of table found in lower on identifier
// boundaries, ordered by first position.
func matchKeys(lower string, table map[string]string) []string {
	var hits []hit
	for key := range table {
		if pos := indexBounded(lower, key); pos >= 0 {
			hits = append(hits, hit{key, pos})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].key < hits[j].key
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.key
	}
	return out
}

func indexBounded(s, key string) int {
	from := 0
	for {
		i := strings.Index(s[from:], key)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(key)
		if (i == 0 || !identByte(s[i-1])) && (end == len(s) || !identByte(s[end])) {
			return i
		}
		from = i + 1
	}
}

func identByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func appendKnown(list []string, table map[string]string, key string) []string {
	if _, ok := table[key]; !ok {
		return list
	}
	for _, k := range list {
		if k == key {
			return list
		}
	}
	return append(list, key)
}
