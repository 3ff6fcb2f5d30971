// Package textmatch holds the text normalization and similarity scoring shared
// by the intent classifier and the menu store.
package textmatch

import (
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	folder   = cases.Fold()
	punctMap = strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`, "×", "x")
)

// Clean returns s in NFKC form with curly quotes and the multiplication sign
// replaced and runs of whitespace collapsed. Case is kept.
func Clean(s string) string {
	s = punctMap.Replace(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// Normalize is Clean followed by case folding.
func Normalize(s string) string {
	return folder.String(Clean(s))
}

// Ratio is the SequenceMatcher similarity of a and b over their characters,
// in [0, 1]. Inputs are compared as given; callers normalize first.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(chars(a), chars(b))
	return m.Ratio()
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Words splits s into lowercase alphanumeric words; apostrophes stay inside
// words.
func Words(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
}

// ContainsWord reports whether phrase occurs in text on word boundaries.
func ContainsWord(text, phrase string) bool {
	tw, pw := Words(text), Words(phrase)
	if len(pw) == 0 || len(pw) > len(tw) {
		return false
	}
	for i := 0; i+len(pw) <= len(tw); i++ {
		match := true
		for j := range pw {
			if tw[i+j] != pw[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
