package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
)

const (
	DefaultTopK        = 3
	DefaultVectorTopN  = 10
	DefaultLexicalTopN = 10
)

type QueryOptions struct {
	DefaultK    int
	VectorTopN  int
	LexicalTopN int
}

func (o QueryOptions) withDefaults() QueryOptions {
	if o.DefaultK <= 0 {
		o.DefaultK = DefaultTopK
	}
	if o.VectorTopN <= 0 {
		o.VectorTopN = DefaultVectorTopN
	}
	if o.LexicalTopN <= 0 {
		o.LexicalTopN = DefaultLexicalTopN
	}
	return o
}

type QueryOption func(*QueryService)

func WithQueryLogger(logger *slog.Logger) QueryOption {
	return func(s *QueryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithQueryObserver(observer ports.QueryObserver) QueryOption {
	return func(s *QueryService) {
		s.observer = observer
	}
}

// engineState is swapped as a whole so queries never see a half-loaded
// generation.
type engineState struct {
	engine *Engine
	err    error
}

// QueryService answers hybrid retrieval queries against the currently
// loaded generation.
type QueryService struct {
	embedder ports.Embedder
	reranker ports.Reranker
	store    ports.ArtifactStore
	observer ports.QueryObserver
	logger   *slog.Logger
	opts     QueryOptions

	state atomic.Pointer[engineState]
}

func NewQueryService(
	embedder ports.Embedder,
	reranker ports.Reranker,
	store ports.ArtifactStore,
	opts QueryOptions,
	options ...QueryOption,
) *QueryService {
	s := &QueryService{
		embedder: embedder,
		reranker: reranker,
		store:    store,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		opts:     opts.withDefaults(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Load reads the current generation from the store and installs it. A failed
// reload keeps the previously loaded generation serving.
func (s *QueryService) Load(ctx context.Context) error {
	engine, err := s.loadEngine(ctx)
	if err != nil {
		if current := s.state.Load(); current != nil && current.engine != nil {
			s.logger.Warn("index_reload_failed",
				"serving_generation", current.engine.Generation(),
				"error", err,
			)
			return err
		}
		s.state.Store(&engineState{err: err})
		s.logger.Error("index_load_failed", "error", err)
		return err
	}

	previous := s.state.Swap(&engineState{engine: engine})
	attrs := []any{"generation", engine.Generation(), "chunks", engine.Len()}
	if previous != nil && previous.engine != nil {
		attrs = append(attrs, "previous_generation", previous.engine.Generation())
	}
	s.logger.Info("index_loaded", attrs...)
	return nil
}

func (s *QueryService) loadEngine(ctx context.Context) (*Engine, error) {
	if s.embedder == nil {
		return nil, domain.WrapError(domain.ErrInitialization, "load index", errors.New("embedder is not configured"))
	}
	if s.reranker == nil {
		return nil, domain.WrapError(domain.ErrInitialization, "load index", errors.New("reranker is not configured"))
	}
	if s.store == nil {
		return nil, domain.WrapError(domain.ErrInitialization, "load index", errors.New("artifact store is not configured"))
	}

	set, err := s.store.Load(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrInitialization) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrInitialization, "load index", err)
	}
	return NewEngine(set)
}

// Generation reports the served generation, or the load error while nothing
// is being served.
func (s *QueryService) Generation() (string, error) {
	engine, err := s.currentEngine()
	if err != nil {
		return "", err
	}
	return engine.Generation(), nil
}

func (s *QueryService) currentEngine() (*Engine, error) {
	current := s.state.Load()
	if current == nil {
		return nil, domain.WrapError(domain.ErrInitialization, "query knowledge base", errors.New("index is not loaded"))
	}
	if current.engine == nil {
		return nil, current.err
	}
	return current.engine, nil
}

// Search runs the hybrid pipeline: both branches, fusion, pairwise rerank,
// top-k.
func (s *QueryService) Search(ctx context.Context, text string, k int) (*domain.QueryResult, error) {
	started := time.Now()
	result, err := s.search(ctx, text, k)
	s.observe(result, err, time.Since(started))
	return result, err
}

func (s *QueryService) search(ctx context.Context, text string, k int) (*domain.QueryResult, error) {
	engine, err := s.currentEngine()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query knowledge base", errors.New("query is empty"))
	}
	if k <= 0 {
		k = s.opts.DefaultK
	}

	candidates, err := s.retrieve(ctx, engine, text)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &domain.QueryResult{
			Status:     domain.QueryStatusEmpty,
			Generation: engine.Generation(),
		}, nil
	}

	scored, err := scoreCandidates(ctx, s.reranker, engine, text, candidates)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalFailure, "rerank candidates", err)
	}

	ranked := rankScored(scored, k)
	results := make([]domain.RankedChunk, 0, len(ranked))
	for _, r := range ranked {
		chunk, _ := engine.Chunk(r.ChunkID)
		results = append(results, domain.RankedChunk{Chunk: chunk, Score: r.RerankScore})
	}

	return &domain.QueryResult{
		Status:     domain.QueryStatusOK,
		Generation: engine.Generation(),
		Candidates: len(candidates),
		Results:    results,
	}, nil
}

func (s *QueryService) retrieve(ctx context.Context, engine *Engine, text string) ([]domain.Candidate, error) {
	queryVector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalFailure, "embed query", err)
	}
	if dim := engine.vectors.Dimension(); len(queryVector) != dim {
		return nil, domain.WrapError(
			domain.ErrRetrievalFailure,
			"embed query",
			fmt.Errorf("query vector has dimension %d, index has %d", len(queryVector), dim),
		)
	}

	vectorHits, err := engine.vectors.Search(queryVector, s.opts.VectorTopN)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalFailure, "vector search", err)
	}
	lexicalHits := engine.lexical.TopN(domain.Tokenize(text), s.opts.LexicalTopN)

	candidates := fuseCandidates(vectorHits, lexicalHits, engine.Len())
	s.logger.Debug("candidates_fused",
		"generation", engine.Generation(),
		"vector_hits", len(vectorHits),
		"lexical_hits", len(lexicalHits),
		"candidates", len(candidates),
	)
	return candidates, nil
}

// Query is the string-returning surface. It never returns an error and
// never panics; failures come back as "Error: ..." text.
func (s *QueryService) Query(ctx context.Context, text string, k int) (out string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("query_panic", "panic", fmt.Sprint(r))
			out = FormatError(domain.WrapError(domain.ErrRetrievalFailure, "query knowledge base", fmt.Errorf("panic: %v", r)))
		}
	}()

	result, err := s.Search(ctx, text, k)
	if err != nil {
		s.logger.Warn("query_failed", "error", err)
		return FormatError(err)
	}
	return FormatResult(result)
}

func (s *QueryService) observe(result *domain.QueryResult, err error, duration time.Duration) {
	if s.observer == nil {
		return
	}
	if err != nil {
		s.observer.ObserveQuery(QueryErrorStatus(err), 0, 0, duration)
		return
	}
	s.observer.ObserveQuery(string(result.Status), result.Candidates, len(result.Results), duration)
}

// QueryErrorStatus maps a query error onto a low-cardinality status label.
func QueryErrorStatus(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInitialization):
		return "init_error"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	default:
		return "retrieval_error"
	}
}
