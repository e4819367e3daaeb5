package domain

type Branch string

const (
	BranchVector  Branch = "vector"
	BranchLexical Branch = "lexical"
)

// VectorHit is a nearest-neighbour match; smaller distance is more similar.
type VectorHit struct {
	ChunkID  int
	Distance float32
}

// LexicalHit is a keyword match; higher score is more relevant.
type LexicalHit struct {
	ChunkID int
	Score   float64
}

// Candidate is a fused retrieval candidate. RetrievalScore keeps the
// branch-native score for logging only; it never takes part in ranking.
type Candidate struct {
	ChunkID        int
	RetrievalScore float64
	Branch         Branch
}

type ScoredResult struct {
	ChunkID     int
	RerankScore float64
}

type QueryStatus string

const (
	QueryStatusOK    QueryStatus = "ok"
	QueryStatusEmpty QueryStatus = "empty"
)

type RankedChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

type QueryResult struct {
	Status     QueryStatus   `json:"status"`
	Generation string        `json:"generation"`
	Candidates int           `json:"candidates"`
	Results    []RankedChunk `json:"results"`
}
