package intent

import (
	"regexp"

	"github.com/tomato-app/tomato-support/internal/textmatch"
	"github.com/tomato-app/tomato-support/knowledge"
	"github.com/tomato-app/tomato-support/store"
)

// Input is what the classifier sees. Menu is the closed vocabulary of item
// names; it is empty when the menu store is unavailable.
type Input struct {
	Text string
	Menu []string
}

// Message is the prepared form of an Input handed to each rule.
type Message struct {
	Raw   string
	Clean string // case kept, for extracting names and references
	Lower string // normalized, for matching
	Menu  []string
}

func newMessage(in Input) Message {
	return Message{
		Raw:   in.Text,
		Clean: textmatch.Clean(in.Text),
		Lower: textmatch.Normalize(in.Text),
		Menu:  in.Menu,
	}
}

// Rule is one row of the priority table.
type Rule struct {
	Kind  Kind
	Match func(Message) (Intent, bool)
}

// rules is evaluated top to bottom; the first match wins.
var rules = []Rule{
	{KindPaymentError, matchPaymentError},
	{KindPaymentStatus, matchPaymentStatus},
	{KindOrderHistory, matchOrderHistory},
	{KindClearCart, matchClearCart},
	{KindShowCart, matchShowCart},
	{KindCheckout, matchCheckout},
	{KindConfirmPayment, matchConfirmPayment},
	{KindRemoveItems, matchRemoveItems},
	{KindAddItems, matchAddItems},
	{KindPopularity, matchPopularity},
	{KindItemDetail, matchItemDetail},
	{KindCategoryListing, matchCategoryListing},
}

// Rules returns a copy of the priority table.
func Rules() []Rule {
	return append([]Rule(nil), rules...)
}

// Classify returns the first matching intent, or OpenEnded.
func Classify(in Input) Intent {
	m := newMessage(in)
	for _, r := range rules {
		if it, ok := r.Match(m); ok {
			return it
		}
	}
	return OpenEnded{Text: in.Text}
}

var (
	payNounRe     = regexp.MustCompile(`\b(payments?|paid|pay|charged?|charges|transactions?|card)\b`)
	payOutcomeRe  = regexp.MustCompile(`fail|declin|succe|go through|went through|bounce|reject|\bwork`)
	payQuestionRe = regexp.MustCompile(`\b(why|what happened|did|was|status|reason|check)\b`)
	presumedRe    = regexp.MustCompile(`fail|declin|bounce|reject|didn't|did not|not go through`)

	historyRe      = regexp.MustCompile(`\border history\b|\b(last|previous|recent|past) orders?\b`)
	ordersRe       = regexp.MustCompile(`\borders\b`)
	historyScopeRe = regexp.MustCompile(`\b(my|past|previous|recent|last|show)\b`)
	clearCartRe    = regexp.MustCompile(`\b(clear|empty|reset|wipe)\s+(out\s+)?((my|the)\s+)?(cart|basket)\b|\b(cart|basket)\b.*\b(clear(ed)?|reset)\b`)
	removeAllRe    = regexp.MustCompile(`\b(remove|delete)\s+(everything|all(\s+items)?)\s+from\s+((my|the)\s+)?(cart|basket)\b`)
	cartRe         = regexp.MustCompile(`\b(cart|basket)\b`)
	cartMutationRe = regexp.MustCompile(`\b(add|remove|delete|put|clear|reset|drop|take out|buy|order|checkout|check out|place|pay)\b`)
	checkoutRe     = regexp.MustCompile(`\b(checkout|check out|place\s+((my|the)\s+)?order|proceed to pay(ment)?)\b`)
	confirmRe      = regexp.MustCompile(`\bconfirm\s+(my\s+)?payment\b|\bpayment\s+(is\s+)?(done|complete|completed)\b|\bi('ve| have) paid\b|session_id=`)
	removeVerbRe   = regexp.MustCompile(`(?i)\b(remove|delete|take out|drop)\b`)
	addPrefixRe    = regexp.MustCompile(`(?i)^(please\s+)?((can|could) you\s+)?(add|order|buy|put|get me|i want to order|i'd like to order|i would like to order)\b`)
	popularRe      = regexp.MustCompile(`\b(popular|best|bestsellers?|most[- ]ordered|top|famous|hot|trending)\b`)
	itemCueRe      = regexp.MustCompile(`\b(price|how much|cost|tell me about|describe|details|what is|what's in|ingredients|calories)\b`)
)

func matchPaymentError(m Message) (Intent, bool) {
	if knowledge.Triggers(m.Raw) {
		return PaymentError{Text: m.Raw}, true
	}
	return nil, false
}

func matchPaymentStatus(m Message) (Intent, bool) {
	t := m.Lower
	if payNounRe.MatchString(t) && payOutcomeRe.MatchString(t) && payQuestionRe.MatchString(t) {
		return PaymentStatus{PresumedFailure: presumedRe.MatchString(t)}, true
	}
	return nil, false
}

func matchOrderHistory(m Message) (Intent, bool) {
	t := m.Lower
	if historyRe.MatchString(t) || (ordersRe.MatchString(t) && historyScopeRe.MatchString(t)) {
		return OrderHistory{}, true
	}
	return nil, false
}

func matchClearCart(m Message) (Intent, bool) {
	if clearCartRe.MatchString(m.Lower) || removeAllRe.MatchString(m.Lower) {
		return ClearCart{}, true
	}
	return nil, false
}

func matchShowCart(m Message) (Intent, bool) {
	if cartRe.MatchString(m.Lower) && !cartMutationRe.MatchString(m.Lower) {
		return ShowCart{}, true
	}
	return nil, false
}

func matchCheckout(m Message) (Intent, bool) {
	if !checkoutRe.MatchString(m.Lower) {
		return nil, false
	}
	return parseCheckout(m.Clean), true
}

func matchConfirmPayment(m Message) (Intent, bool) {
	if !confirmRe.MatchString(m.Lower) {
		return nil, false
	}
	return ConfirmPayment{Reference: PaymentReference(m.Clean)}, true
}

func matchRemoveItems(m Message) (Intent, bool) {
	loc := removeVerbRe.FindStringIndex(m.Clean)
	if loc == nil {
		return nil, false
	}
	return RemoveItems{Items: ParseItems(m.Clean[loc[1]:])}, true
}

func matchAddItems(m Message) (Intent, bool) {
	loc := addPrefixRe.FindStringIndex(m.Clean)
	if loc == nil {
		return nil, false
	}
	return AddItems{Items: ParseItems(m.Clean[loc[1]:])}, true
}

func matchPopularity(m Message) (Intent, bool) {
	if !popularRe.MatchString(m.Lower) {
		return nil, false
	}
	cat, _ := DetectCategory(m.Lower)
	return Popularity{Category: cat}, true
}

func matchItemDetail(m Message) (Intent, bool) {
	if len(m.Menu) == 0 {
		return nil, false
	}
	// longest name wins so "Veg Noodles" beats a shorter overlapping name
	best := ""
	for _, name := range m.Menu {
		if len(name) > len(best) && textmatch.ContainsWord(m.Lower, name) {
			best = name
		}
	}
	if best != "" {
		return ItemDetail{Query: best}, true
	}
	if !itemCueRe.MatchString(m.Lower) {
		return nil, false
	}
	q := ItemPhrase(m.Lower)
	if q == "" || isCategoryTerm(q) {
		return nil, false
	}
	for _, name := range m.Menu {
		if textmatch.Ratio(q, textmatch.Normalize(name)) >= store.SimilarityFloor {
			return ItemDetail{Query: q}, true
		}
	}
	return nil, false
}

func matchCategoryListing(m Message) (Intent, bool) {
	if cat, ok := DetectCategory(m.Lower); ok {
		return CategoryListing{Category: cat}, true
	}
	return nil, false
}
