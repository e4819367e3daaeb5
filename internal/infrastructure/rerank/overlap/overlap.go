// Package overlap scores passages by query term coverage. It needs no model
// server and gives the same scores for the same input.
package overlap

import (
	"context"
	"strings"
	"unicode"
)

const (
	coverageWeight = 0.80
	densityWeight  = 0.20
)

type Reranker struct{}

func New() *Reranker {
	return &Reranker{}
}

// Score returns, per content, 0.8*coverage + 0.2*density where coverage is the
// share of distinct query terms present and density is the share of content
// terms that are query terms.
func (r *Reranker) Score(ctx context.Context, query string, contents []string) ([]float64, error) {
	queryTokens := toTokenSet(query)
	scores := make([]float64, len(contents))
	for i, content := range contents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores[i] = score(queryTokens, splitAlphaNumLower(content))
	}
	return scores, nil
}

func score(query map[string]struct{}, content []string) float64 {
	if len(query) == 0 || len(content) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(query))
	hits := 0
	for _, token := range content {
		if _, ok := query[token]; !ok {
			continue
		}
		hits++
		seen[token] = struct{}{}
	}

	coverage := float64(len(seen)) / float64(len(query))
	density := float64(hits) / float64(len(content))
	return coverageWeight*coverage + densityWeight*density
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
