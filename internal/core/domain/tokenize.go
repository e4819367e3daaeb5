package domain

import "strings"

// Tokenize is the lexical tokenizer shared by index build and query:
// lowercase, then split on Unicode whitespace. Punctuation stays attached to
// its word. Ranking determinism depends on this never changing between a
// build and the queries served from it.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
