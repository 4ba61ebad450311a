// Package rag provides lexical retrieval over program chunks: a shared
// tokenizer, a TF-IDF vector index with interchangeable exact search
// backends, and a Retriever facade with atomic index swaps and a substring
// fallback.
package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// minTokenRunes is the shortest token kept, in runes.
const minTokenRunes = 3

// stopwords are Russian function words that survive the length filter or
// would otherwise dominate short chunks.
var stopwords = map[string]struct{}{
	"и": {}, "в": {}, "на": {}, "с": {}, "по": {}, "для": {}, "от": {}, "до": {}, "из": {},
	"к": {}, "о": {}, "об": {}, "что": {}, "как": {}, "это": {}, "тот": {}, "этот": {},
}

// Tokenize lowercases text, turns every rune that is not a letter, number,
// underscore or whitespace into a separator, and drops short tokens and
// stopwords. Index and query paths both call it.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFC.String(text))
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_')
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenRunes {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
