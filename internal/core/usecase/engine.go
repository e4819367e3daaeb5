package usecase

import (
	"errors"
	"fmt"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
)

// Engine is one loaded, validated generation. It is read-only after
// construction and safe for concurrent queries.
type Engine struct {
	manifest domain.Manifest
	chunks   []domain.Chunk
	vectors  ports.VectorIndex
	lexical  ports.LexicalIndex
}

// NewEngine validates that chunk metadata, vector rows and lexical rows all
// describe the same id space.
func NewEngine(set *ports.ArtifactSet) (*Engine, error) {
	if set == nil {
		return nil, initError(errors.New("artifact set is nil"))
	}
	if set.Vectors == nil {
		return nil, initError(errors.New("vector index is missing"))
	}
	if set.Lexical == nil {
		return nil, initError(errors.New("lexical index is missing"))
	}
	n := len(set.Chunks)
	if n == 0 {
		return nil, initError(errors.New("chunk metadata is empty"))
	}
	if rows := set.Vectors.Len(); rows != n {
		return nil, initError(fmt.Errorf("vector index has %d rows, metadata has %d", rows, n))
	}
	if rows := set.Lexical.Len(); rows != n {
		return nil, initError(fmt.Errorf("lexical index has %d rows, metadata has %d", rows, n))
	}
	if set.Manifest.ChunkCount != 0 && set.Manifest.ChunkCount != n {
		return nil, initError(fmt.Errorf("manifest declares %d chunks, metadata has %d", set.Manifest.ChunkCount, n))
	}

	chunks := make([]domain.Chunk, n)
	for i, rec := range set.Chunks {
		chunks[i] = domain.ChunkFromRecord(i, rec)
	}
	return &Engine{
		manifest: set.Manifest,
		chunks:   chunks,
		vectors:  set.Vectors,
		lexical:  set.Lexical,
	}, nil
}

func (e *Engine) Generation() string { return e.manifest.Generation }

func (e *Engine) Len() int { return len(e.chunks) }

func (e *Engine) Chunk(id int) (domain.Chunk, bool) {
	if id < 0 || id >= len(e.chunks) {
		return domain.Chunk{}, false
	}
	return e.chunks[id], true
}

func initError(err error) error {
	return domain.WrapError(domain.ErrInitialization, "assemble engine", err)
}
