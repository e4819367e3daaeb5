package usecase

import "github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"

// fuseCandidates unions both branches by chunk id. Vector hits come first in
// rank order, then lexical hits not already present. Ids outside
// [0, chunkCount) are dropped.
func fuseCandidates(vector []domain.VectorHit, lexical []domain.LexicalHit, chunkCount int) []domain.Candidate {
	seen := make(map[int]struct{}, len(vector)+len(lexical))
	out := make([]domain.Candidate, 0, len(vector)+len(lexical))

	add := func(id int, score float64, branch domain.Branch) {
		if id < 0 || id >= chunkCount {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, domain.Candidate{
			ChunkID:        id,
			RetrievalScore: score,
			Branch:         branch,
		})
	}

	for _, hit := range vector {
		add(hit.ChunkID, float64(hit.Distance), domain.BranchVector)
	}
	for _, hit := range lexical {
		add(hit.ChunkID, hit.Score, domain.BranchLexical)
	}
	return out
}
