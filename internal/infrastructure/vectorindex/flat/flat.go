// Package flat is an exact nearest-neighbour index over a dense row-major
// float32 matrix, ranked by squared L2 distance.
package flat

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

var ErrDimensionMismatch = errors.New("dimension mismatch")

type Option func(*Index)

// WithCompression selects the payload codec used by WriteTo.
func WithCompression(c Compression) Option {
	return func(idx *Index) { idx.compression = c }
}

// Index is immutable after construction and safe for concurrent searches.
type Index struct {
	dim         int
	count       int
	data        []float32
	compression Compression
}

// New bulk-loads vectors; row i is chunk id i.
func New(dim int, vectors [][]float32, opts ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	data := make([]float32, 0, dim*len(vectors))
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("row %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(vec), dim)
		}
		data = append(data, vec...)
	}

	idx := &Index{dim: dim, count: len(vectors), data: data, compression: CompressionZstd}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

func (idx *Index) Dimension() int { return idx.dim }

func (idx *Index) Len() int { return idx.count }

// Vector returns row id. The slice aliases index memory and must not be
// modified.
func (idx *Index) Vector(id int) ([]float32, bool) {
	if id < 0 || id >= idx.count {
		return nil, false
	}
	return idx.data[id*idx.dim : (id+1)*idx.dim], true
}

// Search returns at most n rows ordered by ascending distance, ties by
// ascending id.
func (idx *Index) Search(query []float32, n int) ([]domain.VectorHit, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("search: %w: got %d, want %d", ErrDimensionMismatch, len(query), idx.dim)
	}
	if n <= 0 || idx.count == 0 {
		return nil, nil
	}

	hits := make([]domain.VectorHit, idx.count)
	for id := 0; id < idx.count; id++ {
		row := idx.data[id*idx.dim : (id+1)*idx.dim]
		hits[id] = domain.VectorHit{ChunkID: id, Distance: squaredL2(query, row)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
