package ports

import (
	"context"
	"io"
	"time"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

// TextExtractor extracts plain text from a source file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Chunker splits text into an ordered list of windows.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores each (query, content) pair independently. The result has
// one score per content, in input order; higher is more relevant.
type Reranker interface {
	Score(ctx context.Context, query string, contents []string) ([]float64, error)
}

// VectorIndex is an immutable nearest-neighbour index over chunk rows.
type VectorIndex interface {
	io.WriterTo
	Dimension() int
	Len() int
	Search(query []float32, n int) ([]domain.VectorHit, error)
}

// LexicalIndex is an immutable keyword index over chunk rows.
type LexicalIndex interface {
	io.WriterTo
	Len() int
	TopN(tokens []string, n int) []domain.LexicalHit
}

// IndexFactory constructs indexes at build time.
type IndexFactory interface {
	NewVectorIndex(dimension int, vectors [][]float32) (VectorIndex, error)
	NewLexicalIndex(docs [][]string) (LexicalIndex, error)
}

// ArtifactSet is one complete generation: chunk metadata plus both indexes,
// all over the same row space.
type ArtifactSet struct {
	Manifest domain.Manifest
	Chunks   []domain.ChunkRecord
	Vectors  VectorIndex
	Lexical  LexicalIndex
}

// ArtifactStore persists and loads whole generations atomically.
type ArtifactStore interface {
	Save(ctx context.Context, set *ArtifactSet) (domain.Manifest, error)
	Load(ctx context.Context) (*ArtifactSet, error)
}

// ArtifactMirror copies a published generation to remote storage.
type ArtifactMirror interface {
	Publish(ctx context.Context, manifest domain.Manifest) error
}

// IndexEventPublisher announces newly published generations.
type IndexEventPublisher interface {
	PublishIndexBuilt(ctx context.Context, generation string) error
}

// BuildLedger records build outcomes.
type BuildLedger interface {
	RecordBuild(ctx context.Context, report *domain.BuildReport, buildErr error) error
}

// QueryObserver receives per-query measurements.
type QueryObserver interface {
	ObserveQuery(status string, candidates, results int, duration time.Duration)
}

// BuildObserver receives per-build measurements.
type BuildObserver interface {
	ObserveBuild(report *domain.BuildReport, duration time.Duration, err error)
}
