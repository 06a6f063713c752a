package ingest

import "unicode"

// Token is one maximal run of same-class code points. Word tokens carry
// letters, digits, and combining marks; separator tokens carry everything
// else. Both kinds survive dense ingestion so reconstruction is exact;
// relation detection sees word tokens only.
type Token struct {
	Runes []rune
	Word  bool
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}

// Tokenize splits a code point stream into maximal same-class runs. The
// concatenation of all token runes reproduces the input exactly.
func Tokenize(runes []rune) []Token {
	if len(runes) == 0 {
		return nil
	}

	var tokens []Token
	start := 0
	word := isWordRune(runes[0])
	for i := 1; i < len(runes); i++ {
		if w := isWordRune(runes[i]); w != word {
			tokens = append(tokens, Token{Runes: runes[start:i], Word: word})
			start = i
			word = w
		}
	}
	return append(tokens, Token{Runes: runes[start:], Word: word})
}
