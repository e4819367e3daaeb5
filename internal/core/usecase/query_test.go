package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

func loadedService(t *testing.T, store *storeFake, reranker *keywordRerankerFake, opts QueryOptions) *QueryService {
	t.Helper()
	svc := NewQueryService(&embedderFake{}, reranker, store, opts)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return svc
}

func TestQueryServiceVPNChunkRanksFirst(t *testing.T) {
	contents := []string{
		"Employees must badge in at the front desk.",
		"Remote access: a VPN is required for all staff connecting from home.",
		"Expense reports are due monthly.",
	}
	store := &storeFake{set: artifactSet(contents,
		[]domain.VectorHit{{ChunkID: 0, Distance: 0.1}, {ChunkID: 2, Distance: 0.2}, {ChunkID: 1, Distance: 0.3}},
		[]domain.LexicalHit{{ChunkID: 1, Score: 1.2}},
	)}
	svc := loadedService(t, store, &keywordRerankerFake{}, QueryOptions{})

	result, err := svc.Search(context.Background(), "Is VPN required?", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Status != domain.QueryStatusOK {
		t.Fatalf("expected ok status, got %s", result.Status)
	}
	if result.Results[0].Chunk.ID != 1 {
		t.Fatalf("expected VPN chunk first, got id=%d", result.Results[0].Chunk.ID)
	}
	if result.Results[0].Chunk.Content != contents[1] {
		t.Fatalf("content must round-trip unchanged, got %q", result.Results[0].Chunk.Content)
	}

	out := svc.Query(context.Background(), "Is VPN required?", 3)
	if !strings.HasPrefix(out, "[Source: policy.txt | Score: 3.0000]\n"+contents[1]+"\n-----------------") {
		t.Fatalf("unexpected formatted output:\n%s", out)
	}
}

func TestQueryServiceReturnsOnlySurvivingCandidates(t *testing.T) {
	store := &storeFake{set: artifactSet(
		[]string{"alpha", "beta", "gamma", "delta"},
		[]domain.VectorHit{{ChunkID: 3, Distance: 0.5}},
		[]domain.LexicalHit{{ChunkID: 3, Score: 2}, {ChunkID: 0, Score: 1}},
	)}
	svc := loadedService(t, store, &keywordRerankerFake{fixed: []float64{0.2, 0.9}}, QueryOptions{})

	result, err := svc.Search(context.Background(), "alpha delta", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected exactly 2 results, got %d", len(result.Results))
	}
	if result.Results[0].Chunk.ID != 0 || result.Results[1].Chunk.ID != 3 {
		t.Fatalf("unexpected order: %+v", result.Results)
	}
	if result.Candidates != 2 {
		t.Fatalf("expected 2 candidates, got %d", result.Candidates)
	}

	out := svc.Query(context.Background(), "alpha delta", 3)
	if got := strings.Count(out, "[Source: "); got != 2 {
		t.Fatalf("expected 2 blocks, got %d", got)
	}
}

func TestQueryServiceEmptyFusionReturnsSentinel(t *testing.T) {
	store := &storeFake{set: artifactSet([]string{"alpha"}, nil, nil)}
	reranker := &keywordRerankerFake{}
	svc := loadedService(t, store, reranker, QueryOptions{})

	result, err := svc.Search(context.Background(), "zzz", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Status != domain.QueryStatusEmpty {
		t.Fatalf("expected empty status, got %s", result.Status)
	}
	if reranker.calls != 0 {
		t.Fatalf("reranker must not run on empty fusion")
	}
	if out := svc.Query(context.Background(), "zzz", 3); out != NoEvidenceMessage {
		t.Fatalf("expected sentinel, got %q", out)
	}
}

func TestQueryServiceDefaultKAndBranchWidths(t *testing.T) {
	contents := []string{"a", "b", "c", "d", "e"}
	vectorHits := []domain.VectorHit{{ChunkID: 0}, {ChunkID: 1}, {ChunkID: 2}, {ChunkID: 3}, {ChunkID: 4}}
	store := &storeFake{set: artifactSet(contents, vectorHits, nil)}
	svc := loadedService(t, store, &keywordRerankerFake{fixed: []float64{1, 2, 3, 4}}, QueryOptions{VectorTopN: 4})

	result, err := svc.Search(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Candidates != 4 {
		t.Fatalf("expected vector branch capped at 4, got %d", result.Candidates)
	}
	if len(result.Results) != DefaultTopK {
		t.Fatalf("expected default k=%d, got %d", DefaultTopK, len(result.Results))
	}
	for i := 1; i < len(result.Results); i++ {
		if result.Results[i].Score > result.Results[i-1].Score {
			t.Fatalf("scores must be non-increasing: %+v", result.Results)
		}
	}
}

func TestQueryServiceLexicalBranchGetsTokens(t *testing.T) {
	set := artifactSet([]string{"x"}, nil, nil)
	store := &storeFake{set: set}
	svc := loadedService(t, store, &keywordRerankerFake{}, QueryOptions{})

	_, _ = svc.Search(context.Background(), "Is VPN Required?", 3)
	lexical := set.Lexical.(*lexicalIndexFake)
	want := []string{"is", "vpn", "required?"}
	if strings.Join(lexical.lastTokens, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected tokens: %v", lexical.lastTokens)
	}
}

func TestQueryServiceNotLoadedIsInitializationError(t *testing.T) {
	svc := NewQueryService(&embedderFake{}, &keywordRerankerFake{}, &storeFake{}, QueryOptions{})

	_, err := svc.Search(context.Background(), "q", 3)
	if !domain.IsKind(err, domain.ErrInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}
	if _, err := svc.Generation(); err == nil {
		t.Fatalf("expected Generation() error before load")
	}
}

func TestQueryServiceFailsClosedOnMissingCapabilities(t *testing.T) {
	store := &storeFake{set: artifactSet([]string{"a"}, nil, nil)}

	noEmbedder := NewQueryService(nil, &keywordRerankerFake{}, store, QueryOptions{})
	if err := noEmbedder.Load(context.Background()); !domain.IsKind(err, domain.ErrInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}

	noReranker := NewQueryService(&embedderFake{}, nil, store, QueryOptions{})
	if err := noReranker.Load(context.Background()); !domain.IsKind(err, domain.ErrInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}
	out := noReranker.Query(context.Background(), "q", 3)
	if !strings.HasPrefix(out, "Error: ") || !strings.Contains(out, "initialization error") {
		t.Fatalf("expected initialization error string, got %q", out)
	}
}

func TestQueryServiceStoreErrorIsWrappedAsInitialization(t *testing.T) {
	svc := NewQueryService(&embedderFake{}, &keywordRerankerFake{}, &storeFake{loadErr: errors.New("disk gone")}, QueryOptions{})
	err := svc.Load(context.Background())
	if !domain.IsKind(err, domain.ErrInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}
	if !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("expected cause in message, got %v", err)
	}
}

func TestQueryServiceMismatchedArtifactsFailLoad(t *testing.T) {
	set := artifactSet([]string{"a", "b"}, nil, nil)
	set.Vectors = &vectorIndexFake{dim: 2, rows: 3}
	svc := NewQueryService(&embedderFake{}, &keywordRerankerFake{}, &storeFake{set: set}, QueryOptions{})

	if err := svc.Load(context.Background()); !domain.IsKind(err, domain.ErrInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}
}

func TestQueryServiceFailedReloadKeepsServing(t *testing.T) {
	store := &storeFake{set: artifactSet([]string{"alpha"}, []domain.VectorHit{{ChunkID: 0}}, nil)}
	svc := loadedService(t, store, &keywordRerankerFake{}, QueryOptions{})

	store.loadErr = errors.New("corrupt generation")
	if err := svc.Load(context.Background()); err == nil {
		t.Fatalf("expected reload error")
	}

	generation, err := svc.Generation()
	if err != nil || generation != "gen-1" {
		t.Fatalf("expected previous generation to keep serving, got %q, %v", generation, err)
	}
	if _, err := svc.Search(context.Background(), "alpha", 1); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
}

func TestQueryServiceReloadSwapsGeneration(t *testing.T) {
	store := &storeFake{set: artifactSet([]string{"alpha"}, []domain.VectorHit{{ChunkID: 0}}, nil)}
	svc := loadedService(t, store, &keywordRerankerFake{}, QueryOptions{})

	next := artifactSet([]string{"beta", "gamma"}, []domain.VectorHit{{ChunkID: 1}}, nil)
	next.Manifest.Generation = "gen-2"
	store.set = next
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	result, err := svc.Search(context.Background(), "gamma", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Generation != "gen-2" || result.Results[0].Chunk.Content != "gamma" {
		t.Fatalf("expected new generation, got %+v", result)
	}
}

func TestQueryServiceRejectsBlankQuery(t *testing.T) {
	store := &storeFake{set: artifactSet([]string{"a"}, nil, nil)}
	svc := loadedService(t, store, &keywordRerankerFake{}, QueryOptions{})

	_, err := svc.Search(context.Background(), "   ", 3)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestQueryServiceRetrievalFailures(t *testing.T) {
	cases := []struct {
		name     string
		embedder *embedderFake
		reranker *keywordRerankerFake
		vecErr   error
	}{
		{name: "embed", embedder: &embedderFake{queryErr: errors.New("embed down")}, reranker: &keywordRerankerFake{}},
		{name: "dimension", embedder: &embedderFake{dim: 5}, reranker: &keywordRerankerFake{}},
		{name: "vector", embedder: &embedderFake{}, reranker: &keywordRerankerFake{}, vecErr: errors.New("bad index")},
		{name: "rerank", embedder: &embedderFake{}, reranker: &keywordRerankerFake{err: errors.New("model down")}},
		{name: "score count", embedder: &embedderFake{}, reranker: &keywordRerankerFake{fixed: []float64{1, 2, 3}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := artifactSet([]string{"alpha"}, []domain.VectorHit{{ChunkID: 0}}, nil)
			set.Vectors.(*vectorIndexFake).err = tc.vecErr
			svc := NewQueryService(tc.embedder, tc.reranker, &storeFake{set: set}, QueryOptions{})
			if err := svc.Load(context.Background()); err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			_, err := svc.Search(context.Background(), "alpha", 3)
			if !domain.IsKind(err, domain.ErrRetrievalFailure) {
				t.Fatalf("expected retrieval failure, got %v", err)
			}
			out := svc.Query(context.Background(), "alpha", 3)
			if !strings.HasPrefix(out, "Error: ") {
				t.Fatalf("expected error string, got %q", out)
			}
		})
	}
}

type panicReranker struct{}

func (panicReranker) Score(context.Context, string, []string) ([]float64, error) {
	panic("boom")
}

func TestQueryServiceQueryRecoversPanics(t *testing.T) {
	store := &storeFake{set: artifactSet([]string{"alpha"}, []domain.VectorHit{{ChunkID: 0}}, nil)}
	svc := NewQueryService(&embedderFake{}, panicReranker{}, store, QueryOptions{})
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	out := svc.Query(context.Background(), "alpha", 3)
	if !strings.HasPrefix(out, "Error: ") || !strings.Contains(out, "boom") {
		t.Fatalf("expected recovered error string, got %q", out)
	}
}

func TestQueryServiceObserverStatuses(t *testing.T) {
	observer := &queryObserverFake{}
	store := &storeFake{set: artifactSet([]string{"alpha"}, []domain.VectorHit{{ChunkID: 0}}, nil)}
	svc := NewQueryService(&embedderFake{}, &keywordRerankerFake{}, store, QueryOptions{}, WithQueryObserver(observer))

	_, _ = svc.Search(context.Background(), "alpha", 1)
	_ = svc.Load(context.Background())
	_, _ = svc.Search(context.Background(), "alpha", 1)
	_, _ = svc.Search(context.Background(), " ", 1)

	want := []string{"init_error", "ok", "invalid_input"}
	if strings.Join(observer.statuses, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected statuses: %v", observer.statuses)
	}
}

func TestQueryServiceIsDeterministic(t *testing.T) {
	store := &storeFake{set: artifactSet(
		[]string{"vpn policy", "vpn access", "lunch"},
		[]domain.VectorHit{{ChunkID: 2}, {ChunkID: 1}, {ChunkID: 0}},
		[]domain.LexicalHit{{ChunkID: 0, Score: 1}, {ChunkID: 1, Score: 1}},
	)}
	svc := loadedService(t, store, &keywordRerankerFake{}, QueryOptions{})

	first := svc.Query(context.Background(), "vpn", 3)
	for i := 0; i < 5; i++ {
		if got := svc.Query(context.Background(), "vpn", 3); got != first {
			t.Fatalf("expected identical output, got\n%s\nvs\n%s", got, first)
		}
	}
}

func TestQueryServiceConcurrentQueriesDuringReload(t *testing.T) {
	set := artifactSet(
		[]string{"alpha policy", "beta policy"},
		[]domain.VectorHit{{ChunkID: 0}, {ChunkID: 1}},
		[]domain.LexicalHit{{ChunkID: 0, Score: 1.5}},
	)
	store := &storeFake{set: set}
	reranker := &keywordRerankerFake{}
	svc := NewQueryService(&embedderFake{}, reranker, store, QueryOptions{})
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				out := svc.Query(context.Background(), "alpha", 1)
				if !strings.HasPrefix(out, "[Source: policy.txt | Score: 1.0000]\nalpha policy\n") {
					t.Errorf("unexpected output: %q", out)
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		_ = svc.Load(context.Background())
	}
	wg.Wait()

	reranker.mu.Lock()
	defer reranker.mu.Unlock()
	if reranker.calls != 8*20 {
		t.Fatalf("reranker calls = %d, want %d", reranker.calls, 8*20)
	}
}
