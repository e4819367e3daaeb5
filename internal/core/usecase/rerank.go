package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
)

// scoreCandidates asks the pairwise model for one score per candidate. Branch
// scores are not carried over.
func scoreCandidates(
	ctx context.Context,
	reranker ports.Reranker,
	engine *Engine,
	query string,
	candidates []domain.Candidate,
) ([]domain.ScoredResult, error) {
	contents := make([]string, len(candidates))
	for i, c := range candidates {
		chunk, ok := engine.Chunk(c.ChunkID)
		if !ok {
			return nil, fmt.Errorf("candidate %d outside index", c.ChunkID)
		}
		contents[i] = chunk.Content
	}

	scores, err := reranker.Score(ctx, query, contents)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("scores/candidates mismatch: %d/%d", len(scores), len(candidates))
	}

	out := make([]domain.ScoredResult, len(candidates))
	for i, c := range candidates {
		out[i] = domain.ScoredResult{ChunkID: c.ChunkID, RerankScore: scores[i]}
	}
	return out, nil
}

// rankScored sorts descending by rerank score and keeps the first k. Ties
// keep fusion order. NaN sorts last.
func rankScored(scored []domain.ScoredResult, k int) []domain.ScoredResult {
	out := make([]domain.ScoredResult, len(scored))
	copy(out, scored)

	sort.SliceStable(out, func(i, j int) bool {
		return sortableScore(out[i].RerankScore) > sortableScore(out[j].RerankScore)
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func sortableScore(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(-1)
	}
	return v
}
