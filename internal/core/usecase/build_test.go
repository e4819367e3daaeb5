package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

type extractorFake struct {
	errs map[string]error
}

func (f *extractorFake) Extract(_ context.Context, path string) (string, error) {
	if err, ok := f.errs[filepath.Base(path)]; ok {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// pipeChunker splits on "|" so tests control window boundaries.
type pipeChunker struct{}

func (pipeChunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "|")
}

type ledgerFake struct {
	report *domain.BuildReport
	err    error
}

func (f *ledgerFake) RecordBuild(_ context.Context, report *domain.BuildReport, buildErr error) error {
	f.report = report
	f.err = buildErr
	return errors.New("ledger unavailable")
}

type eventsFake struct {
	generations []string
}

func (f *eventsFake) PublishIndexBuilt(_ context.Context, generation string) error {
	f.generations = append(f.generations, generation)
	return nil
}

type mirrorFake struct {
	manifests []domain.Manifest
}

func (f *mirrorFake) Publish(_ context.Context, manifest domain.Manifest) error {
	f.manifests = append(f.manifests, manifest)
	return nil
}

type buildObserverFake struct {
	calls int
	err   error
}

func (f *buildObserverFake) ObserveBuild(_ *domain.BuildReport, _ time.Duration, err error) {
	f.calls++
	f.err = err
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestIndexBuildUseCaseBuildsInNameOrder(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"b.txt": "beta one|beta two",
		"a.txt": "alpha|   |alpha three",
	})
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	store := &storeFake{}
	factory := &factoryFake{}
	uc := NewIndexBuildUseCase(&extractorFake{}, pipeChunker{}, &embedderFake{}, factory, store, BuildOptions{})

	report, err := uc.Build(context.Background(), dir)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if report.Generation != "gen-test" || report.Chunks != 4 || report.Dimension != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.FilesSeen != 2 || report.FilesIndexed != 2 {
		t.Fatalf("unexpected file counts: %+v", report)
	}

	chunks := store.saved.Chunks
	want := []domain.ChunkRecord{
		{Source: "a.txt", ChunkNum: 0, Content: "alpha"},
		{Source: "a.txt", ChunkNum: 2, Content: "alpha three"},
		{Source: "b.txt", ChunkNum: 0, Content: "beta one"},
		{Source: "b.txt", ChunkNum: 1, Content: "beta two"},
	}
	for i, rec := range want {
		if chunks[i] != rec {
			t.Fatalf("chunk %d: expected %+v, got %+v", i, rec, chunks[i])
		}
	}
	if strings.Join(factory.docs[1], " ") != "alpha three" {
		t.Fatalf("lexical docs must be tokenized chunk content, got %v", factory.docs[1])
	}
	if store.saved.Manifest.ChunkCount != 4 || store.saved.Vectors.Len() != 4 || store.saved.Lexical.Len() != 4 {
		t.Fatalf("artifact rows out of sync")
	}
}

func TestIndexBuildUseCaseSkipsFailedFiles(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": "alpha",
		"b.bin": "???",
		"c.pdf": "broken",
		"d.txt": "",
		"e.txt": "echo",
	})
	extractor := &extractorFake{errs: map[string]error{
		"b.bin": domain.WrapError(domain.ErrUnsupportedFormat, "extract text", errors.New(".bin")),
		"c.pdf": errors.New("malformed xref table"),
	}}
	store := &storeFake{}
	uc := NewIndexBuildUseCase(extractor, pipeChunker{}, &embedderFake{}, &factoryFake{}, store, BuildOptions{})

	report, err := uc.Build(context.Background(), dir)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if report.FilesSeen != 5 || report.FilesIndexed != 2 || len(report.FilesSkipped) != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.FilesSkipped[0].Source != "b.bin" || report.FilesSkipped[1].Source != "c.pdf" || report.FilesSkipped[2].Source != "d.txt" {
		t.Fatalf("unexpected skipped files: %+v", report.FilesSkipped)
	}
	if len(store.saved.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(store.saved.Chunks))
	}
}

func TestIndexBuildUseCaseEmptyCorpusWritesNothing(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"blank.txt": "  \n "})
	store := &storeFake{}
	observer := &buildObserverFake{}
	events := &eventsFake{}
	uc := NewIndexBuildUseCase(&extractorFake{}, pipeChunker{}, &embedderFake{}, &factoryFake{}, store, BuildOptions{},
		WithBuildObserver(observer), WithIndexEvents(events))

	_, err := uc.Build(context.Background(), dir)
	if !domain.IsKind(err, domain.ErrEmptyCorpus) {
		t.Fatalf("expected empty corpus error, got %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("no artifacts must be written")
	}
	if observer.calls != 1 || observer.err == nil {
		t.Fatalf("observer must see the failed build")
	}
	if len(events.generations) != 0 {
		t.Fatalf("no event must be published for a failed build")
	}

	svc := NewQueryService(&embedderFake{}, &keywordRerankerFake{}, store, QueryOptions{})
	_ = svc.Load(context.Background())
	out := svc.Query(context.Background(), "anything", 3)
	if !strings.HasPrefix(out, "Error: ") || !strings.Contains(out, domain.ErrInitialization.Error()) {
		t.Fatalf("expected initialization error string, got %q", out)
	}
}

func TestIndexBuildUseCaseMissingDir(t *testing.T) {
	uc := NewIndexBuildUseCase(&extractorFake{}, pipeChunker{}, &embedderFake{}, &factoryFake{}, &storeFake{}, BuildOptions{})
	_, err := uc.Build(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIndexBuildUseCaseEmbedsInBatches(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "1|2|3|4|5"})
	embedder := &embedderFake{}
	uc := NewIndexBuildUseCase(&extractorFake{}, pipeChunker{}, embedder, &factoryFake{}, &storeFake{}, BuildOptions{EmbedBatchSize: 2})

	if _, err := uc.Build(context.Background(), dir); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(embedder.batches) != 3 || embedder.batches[2] != 1 {
		t.Fatalf("unexpected batches: %v", embedder.batches)
	}
}

func TestIndexBuildUseCaseEmbedFailureAborts(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "alpha"})
	store := &storeFake{}
	uc := NewIndexBuildUseCase(&extractorFake{}, pipeChunker{}, &embedderFake{embedErr: errors.New("model offline")}, &factoryFake{}, store, BuildOptions{})

	if _, err := uc.Build(context.Background(), dir); err == nil || !strings.Contains(err.Error(), "model offline") {
		t.Fatalf("expected embed error, got %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("no artifacts must be written")
	}
}

func TestIndexBuildUseCaseHooksAfterPublish(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "alpha"})
	ledger := &ledgerFake{}
	events := &eventsFake{}
	mirror := &mirrorFake{}
	uc := NewIndexBuildUseCase(&extractorFake{}, pipeChunker{}, &embedderFake{}, &factoryFake{}, &storeFake{}, BuildOptions{},
		WithBuildLedger(ledger), WithIndexEvents(events), WithArtifactMirror(mirror))

	report, err := uc.Build(context.Background(), dir)
	if err != nil {
		t.Fatalf("ledger failure must not fail the build: %v", err)
	}
	if ledger.report != report || ledger.err != nil {
		t.Fatalf("ledger must receive the report")
	}
	if len(events.generations) != 1 || events.generations[0] != "gen-test" {
		t.Fatalf("unexpected events: %v", events.generations)
	}
	if len(mirror.manifests) != 1 || mirror.manifests[0].ChunkCount != 1 {
		t.Fatalf("unexpected mirror calls: %+v", mirror.manifests)
	}
}

func TestIndexBuildUseCaseCanceledContext(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "alpha"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	uc := NewIndexBuildUseCase(&extractorFake{}, pipeChunker{}, &embedderFake{}, &factoryFake{}, &storeFake{}, BuildOptions{})
	if _, err := uc.Build(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
