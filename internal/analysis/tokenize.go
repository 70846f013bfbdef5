// Package analysis turns text into normalized terms. The indexer, the query
// compiler and the preview highlighter share it so that a term produced at
// index time is always matched by the same term at query time.
package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is one normalized term occurrence.
// Start and End are byte offsets into the analysed string.
type Token struct {
	Term  string
	Pos   int
	Start int
	End   int
}

// Tokenize splits s into maximal runs of letters and digits and case-folds them.
func Tokenize(s string) []Token {
	var out []Token
	start := -1
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if isTermRune(r) {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			out = append(out, Token{Term: Normalize(s[start:i]), Pos: len(out), Start: start, End: i})
			start = -1
		}
		i += size
	}
	if start >= 0 {
		out = append(out, Token{Term: Normalize(s[start:]), Pos: len(out), Start: start, End: len(s)})
	}
	return out
}

// Terms returns only the normalized terms of s, in order.
func Terms(s string) []string {
	toks := Tokenize(s)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Term
	}
	return out
}

// Normalize case-folds a single term.
func Normalize(s string) string {
	return strings.ToLower(s)
}

func isTermRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
