package index

import (
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/lexical/bm25"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/vectorindex/flat"
)

// Factory builds the flat vector index and the BM25 lexical index.
type Factory struct {
	Compression flat.Compression
	BM25        bm25.Params
}

func NewFactory(compression flat.Compression) *Factory {
	return &Factory{Compression: compression, BM25: bm25.DefaultParams()}
}

func (f *Factory) NewVectorIndex(dimension int, vectors [][]float32) (ports.VectorIndex, error) {
	idx, err := flat.New(dimension, vectors, flat.WithCompression(f.Compression))
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (f *Factory) NewLexicalIndex(docs [][]string) (ports.LexicalIndex, error) {
	return bm25.New(docs, f.BM25), nil
}
