package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
)

const DefaultEmbedBatchSize = 32

type BuildOptions struct {
	EmbedBatchSize int
}

type BuildOption func(*IndexBuildUseCase)

func WithBuildLogger(logger *slog.Logger) BuildOption {
	return func(uc *IndexBuildUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithBuildObserver(observer ports.BuildObserver) BuildOption {
	return func(uc *IndexBuildUseCase) { uc.observer = observer }
}

func WithBuildLedger(ledger ports.BuildLedger) BuildOption {
	return func(uc *IndexBuildUseCase) { uc.ledger = ledger }
}

func WithIndexEvents(events ports.IndexEventPublisher) BuildOption {
	return func(uc *IndexBuildUseCase) { uc.events = events }
}

func WithArtifactMirror(mirror ports.ArtifactMirror) BuildOption {
	return func(uc *IndexBuildUseCase) { uc.mirror = mirror }
}

// IndexBuildUseCase turns a directory of documents into a published
// generation.
type IndexBuildUseCase struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	factory   ports.IndexFactory
	store     ports.ArtifactStore
	opts      BuildOptions

	ledger   ports.BuildLedger
	events   ports.IndexEventPublisher
	mirror   ports.ArtifactMirror
	observer ports.BuildObserver
	logger   *slog.Logger
}

func NewIndexBuildUseCase(
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	factory ports.IndexFactory,
	store ports.ArtifactStore,
	opts BuildOptions,
	options ...BuildOption,
) *IndexBuildUseCase {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = DefaultEmbedBatchSize
	}
	uc := &IndexBuildUseCase{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		factory:   factory,
		store:     store,
		opts:      opts,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		opt(uc)
	}
	return uc
}

func (uc *IndexBuildUseCase) Build(ctx context.Context, dir string) (*domain.BuildReport, error) {
	started := time.Now()
	report := &domain.BuildReport{}

	manifest, err := uc.buildPipeline(ctx, dir, report)
	report.Duration = time.Since(started)

	uc.afterBuild(ctx, report, manifest, err)
	if err != nil {
		return report, err
	}
	return report, nil
}

func (uc *IndexBuildUseCase) buildPipeline(ctx context.Context, dir string, report *domain.BuildReport) (domain.Manifest, error) {
	records, err := uc.collectChunks(ctx, dir, report)
	if err != nil {
		return domain.Manifest{}, err
	}
	if len(records) == 0 {
		return domain.Manifest{}, domain.WrapError(
			domain.ErrEmptyCorpus,
			"build index",
			fmt.Errorf("%d files seen in %s", report.FilesSeen, dir),
		)
	}

	vectors, err := uc.embedChunks(ctx, records)
	if err != nil {
		return domain.Manifest{}, err
	}

	set, err := uc.buildIndexes(records, vectors)
	if err != nil {
		return domain.Manifest{}, err
	}

	manifest, err := uc.store.Save(ctx, set)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("save artifacts: %w", err)
	}

	report.Generation = manifest.Generation
	report.Chunks = manifest.ChunkCount
	report.Dimension = manifest.Dimension
	return manifest, nil
}

// collectChunks walks dir in name order. Per-file failures are recorded in
// the report and do not stop the build.
func (uc *IndexBuildUseCase) collectChunks(ctx context.Context, dir string, report *domain.BuildReport) ([]domain.ChunkRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read knowledge dir", err)
	}

	var records []domain.ChunkRecord
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		report.FilesSeen++

		fileRecords, err := uc.chunkFile(ctx, path)
		if err != nil {
			report.FilesSkipped = append(report.FilesSkipped, domain.SkippedFile{
				Source: entry.Name(),
				Reason: err.Error(),
			})
			if domain.IsKind(err, domain.ErrUnsupportedFormat) {
				uc.logger.Info("file_skipped", "source", entry.Name(), "reason", "unsupported format")
			} else {
				uc.logger.Warn("file_failed", "error", &domain.FileError{Path: entry.Name(), Err: err})
			}
			continue
		}
		if len(fileRecords) == 0 {
			report.FilesSkipped = append(report.FilesSkipped, domain.SkippedFile{
				Source: entry.Name(),
				Reason: "no extractable text",
			})
			uc.logger.Info("file_skipped", "source", entry.Name(), "reason", "no extractable text")
			continue
		}

		report.FilesIndexed++
		records = append(records, fileRecords...)
		uc.logger.Debug("file_chunked", "source", entry.Name(), "chunks", len(fileRecords))
	}
	return records, nil
}

// chunkFile keeps window ordinals stable: a dropped whitespace-only window
// still consumes its chunk number.
func (uc *IndexBuildUseCase) chunkFile(ctx context.Context, path string) ([]domain.ChunkRecord, error) {
	text, err := uc.extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	var records []domain.ChunkRecord
	for i, window := range uc.chunker.Split(text) {
		if strings.TrimSpace(window) == "" {
			continue
		}
		records = append(records, domain.ChunkRecord{
			Source:   source,
			ChunkNum: i,
			Content:  window,
		})
	}
	return records, nil
}

func (uc *IndexBuildUseCase) embedChunks(ctx context.Context, records []domain.ChunkRecord) ([][]float32, error) {
	vectors := make([][]float32, 0, len(records))
	dimension := 0

	for start := 0; start < len(records); start += uc.opts.EmbedBatchSize {
		end := min(start+uc.opts.EmbedBatchSize, len(records))
		texts := make([]string, 0, end-start)
		for _, rec := range records[start:end] {
			texts = append(texts, rec.Content)
		}

		batch, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts)),
			)
		}
		for i, vec := range batch {
			if dimension == 0 {
				dimension = len(vec)
			}
			if len(vec) == 0 || len(vec) != dimension {
				return nil, domain.WrapError(
					domain.ErrInvalidInput,
					"embed chunks",
					fmt.Errorf("chunk %d has dimension %d, expected %d", start+i, len(vec), dimension),
				)
			}
		}
		vectors = append(vectors, batch...)
		uc.logger.Debug("chunks_embedded", "done", end, "total", len(records))
	}
	return vectors, nil
}

func (uc *IndexBuildUseCase) buildIndexes(records []domain.ChunkRecord, vectors [][]float32) (*ports.ArtifactSet, error) {
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build indexes", errors.New("no vectors"))
	}
	dimension := len(vectors[0])

	vectorIndex, err := uc.factory.NewVectorIndex(dimension, vectors)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}

	docs := make([][]string, len(records))
	for i, rec := range records {
		docs[i] = domain.Tokenize(rec.Content)
	}
	lexicalIndex, err := uc.factory.NewLexicalIndex(docs)
	if err != nil {
		return nil, fmt.Errorf("build lexical index: %w", err)
	}

	return &ports.ArtifactSet{
		Manifest: domain.Manifest{
			ChunkCount: len(records),
			Dimension:  dimension,
		},
		Chunks:  records,
		Vectors: vectorIndex,
		Lexical: lexicalIndex,
	}, nil
}

// afterBuild runs the optional hooks. Their failures are logged only; the
// generation is already published.
func (uc *IndexBuildUseCase) afterBuild(ctx context.Context, report *domain.BuildReport, manifest domain.Manifest, buildErr error) {
	if uc.observer != nil {
		uc.observer.ObserveBuild(report, report.Duration, buildErr)
	}
	if uc.ledger != nil {
		if err := uc.ledger.RecordBuild(ctx, report, buildErr); err != nil {
			uc.logger.Warn("build_ledger_failed", "error", err)
		}
	}

	if buildErr != nil {
		uc.logger.Error("index_build_failed",
			"files_seen", report.FilesSeen,
			"files_skipped", len(report.FilesSkipped),
			"error", buildErr,
		)
		return
	}

	uc.logger.Info("index_built",
		"generation", report.Generation,
		"files_seen", report.FilesSeen,
		"files_indexed", report.FilesIndexed,
		"files_skipped", len(report.FilesSkipped),
		"chunks", report.Chunks,
		"dimension", report.Dimension,
		"duration_ms", report.Duration.Milliseconds(),
	)

	if uc.mirror != nil {
		if err := uc.mirror.Publish(ctx, manifest); err != nil {
			uc.logger.Warn("artifact_mirror_failed", "generation", manifest.Generation, "error", err)
		}
	}
	if uc.events != nil {
		if err := uc.events.PublishIndexBuilt(ctx, manifest.Generation); err != nil {
			uc.logger.Warn("index_event_publish_failed", "generation", manifest.Generation, "error", err)
		}
	}
}
