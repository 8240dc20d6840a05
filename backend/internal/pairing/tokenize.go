package pairing

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/orsinium-labs/stopwords"
)

// minTokenLen is the shortest alphanumeric run kept as a token.
const minTokenLen = 2

var english = stopwords.MustGet("en")

// TokenSet is a set of case-folded content tokens.
type TokenSet map[string]struct{}

// Tokenize splits text into alphanumeric runs, case-folds them and drops
// short runs, pure numbers and English stop words.
func Tokenize(text string) TokenSet {
	out := make(TokenSet)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenLen || isNumber(f) {
			continue
		}
		tok := strings.ToLower(f)
		if english.Contains(tok) {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// NodeText is the text a node contributes to content similarity.
func NodeText(content, label string) string {
	return content + " " + label
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
