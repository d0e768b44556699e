package index

import (
	"strings"
	"unicode"
)

// Tokenize splits text into search terms. Latin-script words are lowercased
// and split on non-letter boundaries; runs of Han characters are expanded
// into overlapping bigrams. Single-character terms are dropped.
func Tokenize(text string) []string {
	var tokens []string
	var word []rune
	var han []rune

	flushWord := func() {
		if len(word) > 1 {
			tokens = append(tokens, strings.ToLower(string(word)))
		}
		word = word[:0]
	}
	flushHan := func() {
		if len(han) == 1 {
			han = han[:0]
			return
		}
		for i := 0; i+1 < len(han); i++ {
			tokens = append(tokens, string(han[i:i+2]))
		}
		han = han[:0]
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word = append(word, r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return tokens
}
