package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tomato-app/tomato-support/internal/textmatch"
)

var (
	cartTailRe   = regexp.MustCompile(`(?i)\s+(to|from|in|into|out of)\s+((my|the)\s+)?(cart|basket)\b.*$`)
	itemSplitRe  = regexp.MustCompile(`(?i)\s*(,|&|\+|\band\b)\s*`)
	suffixQtyRe  = regexp.MustCompile(`(?i)(\s+[x*]\s*|\s*\*\s*)(-?\d+)$`)
	prefixQtyRe  = regexp.MustCompile(`(?i)^(-?\d+)\s*(x\s+|\*\s*|\s)`)
	leadFillerRe = regexp.MustCompile(`(?i)^((please|a|an|some|the|me)\s+)+`)
	tailFillerRe = regexp.MustCompile(`(?i)(\s+(please|too|also))+$`)

	addressRe = regexp.MustCompile(`(?i)\b(?:address\s*[:=]|deliver(?:y)?\s+to|ship\s+to)\s*(.+?)(?:\s*[;,]?\s*\b(?:phone|contact|tel|mobile|pay(?:ing)?\s+(?:by|with|via|using))\b|[;\n]|$)`)
	contactRe = regexp.MustCompile(`(?i)\b(?:phone|contact|tel|mobile)\s*(?:no\.?|number)?\s*[:=]?\s*(\+?\d[\d\s-]{5,}\d)`)
	methodRe  = regexp.MustCompile(`(?i)\bpay(?:ing)?\s+(?:by|with|via|using)\s+(cash on delivery|card|cash|cod|upi|wallet|stripe)\b`)

	paymentRefRe = regexp.MustCompile(`\b(pi_[A-Za-z0-9]+|cs_[A-Za-z0-9_]+)`)
	sessionIDRe  = regexp.MustCompile(`session_id=([A-Za-z0-9_]+)`)
)

// ParseItems splits the part of an add or remove message that follows the
// verb into item requests. Segments are separated by commas, "and", "&" or
// "+". A quantity may be given as a suffix ("x 2", "*2") or a prefix ("2 x",
// "2"); it defaults to 1 and is floored at 1.
func ParseItems(s string) []ItemRequest {
	s = cartTailRe.ReplaceAllString(strings.TrimSpace(s), "")
	var out []ItemRequest
	for _, seg := range itemSplitRe.Split(s, -1) {
		seg = strings.Trim(strings.TrimSpace(seg), ".!?;:")
		qty := 1
		if m := suffixQtyRe.FindStringSubmatchIndex(seg); m != nil {
			qty, _ = strconv.Atoi(seg[m[4]:m[5]])
			seg = seg[:m[0]]
		} else if m := prefixQtyRe.FindStringSubmatchIndex(seg); m != nil {
			qty, _ = strconv.Atoi(seg[m[2]:m[3]])
			seg = seg[m[1]:]
		}
		if qty < 1 {
			qty = 1
		}
		name := tailFillerRe.ReplaceAllString(leadFillerRe.ReplaceAllString(strings.TrimSpace(seg), ""), "")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, ItemRequest{Name: name, Qty: qty})
	}
	return out
}

var phraseFiller = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "is": true, "are": true, "for": true,
	"about": true, "me": true, "your": true, "you": true, "do": true, "does": true,
	"have": true, "in": true, "it": true, "what": true, "what's": true, "whats": true,
	"how": true, "much": true, "tell": true, "describe": true, "details": true,
	"price": true, "cost": true, "costs": true, "calories": true, "ingredients": true,
	"please": true, "menu": true, "option": true, "options": true, "on": true,
	"with": true, "there": true, "any": true, "can": true, "i": true, "get": true,
}

// ItemPhrase strips question filler from a normalized item question, leaving
// the words that name the item.
func ItemPhrase(lower string) string {
	var keep []string
	for _, w := range textmatch.Words(lower) {
		if !phraseFiller[w] {
			keep = append(keep, w)
		}
	}
	return strings.Join(keep, " ")
}

func parseCheckout(clean string) Checkout {
	var c Checkout
	if m := addressRe.FindStringSubmatch(clean); m != nil {
		c.Address = strings.Trim(strings.TrimSpace(m[1]), ".,")
	}
	if m := contactRe.FindStringSubmatch(clean); m != nil {
		c.Contact = strings.TrimSpace(m[1])
	}
	if m := methodRe.FindStringSubmatch(clean); m != nil {
		c.Method = strings.ToLower(m[1])
	}
	return c
}

// PaymentReference returns the first payment intent (pi_...), checkout
// session (cs_...) or session_id= value in s.
func PaymentReference(s string) string {
	if m := paymentRefRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := sessionIDRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

var categoryTerms = []struct {
	term     string
	category string
}{
	{"sandwich", "sandwich"}, {"sandwiches", "sandwich"},
	{"roll", "rolls"}, {"rolls", "rolls"},
	{"salad", "salad"}, {"salads", "salad"},
	{"dessert", "desserts"}, {"desserts", "desserts"},
	{"cake", "cake"}, {"cakes", "cake"},
	{"pasta", "pasta"},
	{"noodle", "noodles"}, {"noodles", "noodles"},
	{"pure veg", "veg"}, {"veg", "veg"},
	// synonyms
	{"sub", "sandwich"}, {"subs", "sandwich"}, {"hoagie", "sandwich"}, {"hoagies", "sandwich"},
	{"wrap", "rolls"}, {"wraps", "rolls"},
	{"desert", "desserts"}, {"deserts", "desserts"},
}

// DetectCategory maps category words and their synonyms in text onto one of
// the fixed menu categories. Terms are checked in a fixed order, so a message
// naming two categories resolves the same way every time.
func DetectCategory(text string) (string, bool) {
	for _, t := range categoryTerms {
		if textmatch.ContainsWord(text, t.term) {
			return t.category, true
		}
	}
	return "", false
}

func isCategoryTerm(s string) bool {
	for _, t := range categoryTerms {
		if s == t.term {
			return true
		}
	}
	return false
}
