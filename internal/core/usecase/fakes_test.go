package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
)

type embedderFake struct {
	mu        sync.Mutex
	dim       int
	queryErr  error
	embedErr  error
	batches   []int
	lastQuery string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, len(texts))
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = make([]float32, f.dimension())
		out[i][0] = float32(len(text))
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = text
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return make([]float32, f.dimension()), nil
}

func (f *embedderFake) dimension() int {
	if f.dim == 0 {
		return 2
	}
	return f.dim
}

// keywordRerankerFake scores a content by how many query words it contains.
type keywordRerankerFake struct {
	mu    sync.Mutex
	err   error
	calls int
	fixed []float64
}

func (f *keywordRerankerFake) Score(_ context.Context, query string, contents []string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.fixed != nil {
		return f.fixed, nil
	}
	words := domain.Tokenize(strings.NewReplacer("?", "", ".", "").Replace(query))
	out := make([]float64, len(contents))
	for i, content := range contents {
		lower := strings.ToLower(content)
		for _, w := range words {
			if strings.Contains(lower, w) {
				out[i]++
			}
		}
	}
	return out, nil
}

type vectorIndexFake struct {
	dim  int
	rows int
	hits []domain.VectorHit
	err  error
}

func (f *vectorIndexFake) WriteTo(io.Writer) (int64, error) { return 0, nil }
func (f *vectorIndexFake) Dimension() int                   { return f.dim }
func (f *vectorIndexFake) Len() int                         { return f.rows }
func (f *vectorIndexFake) Search(_ []float32, n int) ([]domain.VectorHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > n {
		return f.hits[:n], nil
	}
	return f.hits, nil
}

type lexicalIndexFake struct {
	mu         sync.Mutex
	rows       int
	hits       []domain.LexicalHit
	lastTokens []string
}

func (f *lexicalIndexFake) WriteTo(io.Writer) (int64, error) { return 0, nil }
func (f *lexicalIndexFake) Len() int                         { return f.rows }
func (f *lexicalIndexFake) TopN(tokens []string, n int) []domain.LexicalHit {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTokens = tokens
	if len(f.hits) > n {
		return f.hits[:n]
	}
	return f.hits
}

type storeFake struct {
	set     *ports.ArtifactSet
	loadErr error
	saveErr error
	saved   *ports.ArtifactSet
	saves   int
}

func (f *storeFake) Save(_ context.Context, set *ports.ArtifactSet) (domain.Manifest, error) {
	f.saves++
	if f.saveErr != nil {
		return domain.Manifest{}, f.saveErr
	}
	f.saved = set
	f.set = set
	manifest := set.Manifest
	manifest.Generation = "gen-test"
	f.set.Manifest = manifest
	return manifest, nil
}

func (f *storeFake) Load(context.Context) (*ports.ArtifactSet, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.set == nil {
		return nil, domain.WrapError(domain.ErrInitialization, "load index", errors.New("no generation published"))
	}
	return f.set, nil
}

type factoryFake struct {
	vectorErr error
	docs      [][]string
}

func (f *factoryFake) NewVectorIndex(dim int, vectors [][]float32) (ports.VectorIndex, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return &vectorIndexFake{dim: dim, rows: len(vectors)}, nil
}

func (f *factoryFake) NewLexicalIndex(docs [][]string) (ports.LexicalIndex, error) {
	f.docs = docs
	return &lexicalIndexFake{rows: len(docs)}, nil
}

type queryObserverFake struct {
	statuses []string
}

func (f *queryObserverFake) ObserveQuery(status string, _, _ int, _ time.Duration) {
	f.statuses = append(f.statuses, status)
}

// artifactSet builds a loaded generation over contents with the given branch
// hits.
func artifactSet(contents []string, vectorHits []domain.VectorHit, lexicalHits []domain.LexicalHit) *ports.ArtifactSet {
	records := make([]domain.ChunkRecord, len(contents))
	for i, c := range contents {
		records[i] = domain.ChunkRecord{Source: "policy.txt", ChunkNum: i, Content: c}
	}
	return &ports.ArtifactSet{
		Manifest: domain.Manifest{Generation: "gen-1", ChunkCount: len(contents), Dimension: 2},
		Chunks:   records,
		Vectors:  &vectorIndexFake{dim: 2, rows: len(contents), hits: vectorHits},
		Lexical:  &lexicalIndexFake{rows: len(contents), hits: lexicalHits},
	}
}
