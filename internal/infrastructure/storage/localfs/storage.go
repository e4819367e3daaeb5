// Package localfs stores index generations on the local filesystem. Each
// generation is a directory; the CURRENT file names the one being served.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
)

const (
	CurrentFileName  = "CURRENT"
	ManifestFileName = "manifest.json"
	ChunksFileName   = "chunk_metadata.json"
	VectorsFileName  = "knowledge.index"
	LexicalFileName  = "lexical.bm25"
	ManifestVersion  = 1

	generationPrefix = "gen-"
	stagingPrefix    = ".staging-"
)

// ArtifactFiles are the files every generation must contain besides its
// manifest.
var ArtifactFiles = []string{ChunksFileName, VectorsFileName, LexicalFileName}

type Storage struct {
	basePath string
	retain   int
	logger   *slog.Logger

	mu sync.Mutex
}

func New(basePath string, retain int, logger *slog.Logger) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/index"
	}
	if retain < 1 {
		retain = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &Storage{basePath: basePath, retain: retain, logger: logger}, nil
}

func (s *Storage) BasePath() string { return s.basePath }

func (s *Storage) GenerationDir(generation string) string {
	return filepath.Join(s.basePath, generation)
}

// NewGeneration returns a fresh, time-ordered generation name.
func NewGeneration() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate generation id: %w", err)
	}
	return generationPrefix + id.String(), nil
}

// Current returns the generation named by CURRENT.
func (s *Storage) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, CurrentFileName))
	if errors.Is(err, os.ErrNotExist) {
		return "", domain.WrapError(domain.ErrInitialization, "resolve current generation", errors.New("no generation published"))
	}
	if err != nil {
		return "", domain.WrapError(domain.ErrInitialization, "resolve current generation", err)
	}
	generation := strings.TrimSpace(string(data))
	if !strings.HasPrefix(generation, generationPrefix) || strings.ContainsAny(generation, `/\`) {
		return "", domain.WrapError(domain.ErrInitialization, "resolve current generation", fmt.Errorf("invalid generation %q", generation))
	}
	return generation, nil
}

// Generations lists published generation directories, oldest first.
func (s *Storage) Generations() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), generationPrefix) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Save writes all artifacts of set into a new generation and publishes it.
func (s *Storage) Save(ctx context.Context, set *ports.ArtifactSet) (domain.Manifest, error) {
	if err := checkSet(set); err != nil {
		return domain.Manifest{}, err
	}

	generation, err := NewGeneration()
	if err != nil {
		return domain.Manifest{}, err
	}
	staging, err := s.Stage(generation)
	if err != nil {
		return domain.Manifest{}, err
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staging)
		}
	}()

	files := make(map[string]uint32, len(ArtifactFiles))
	writers := map[string]io.WriterTo{
		ChunksFileName:  jsonWriter{value: set.Chunks},
		VectorsFileName: set.Vectors,
		LexicalFileName: set.Lexical,
	}
	for _, name := range ArtifactFiles {
		if err := ctx.Err(); err != nil {
			return domain.Manifest{}, err
		}
		sum, err := writeFileSync(filepath.Join(staging, name), writers[name])
		if err != nil {
			return domain.Manifest{}, fmt.Errorf("write %s: %w", name, err)
		}
		files[name] = sum
	}

	manifest := domain.Manifest{
		Version:    ManifestVersion,
		Generation: generation,
		CreatedAt:  time.Now().UTC(),
		ChunkCount: len(set.Chunks),
		Dimension:  set.Vectors.Dimension(),
		Files:      files,
	}
	if _, err := writeFileSync(filepath.Join(staging, ManifestFileName), jsonWriter{value: manifest, indent: true}); err != nil {
		return domain.Manifest{}, fmt.Errorf("write manifest: %w", err)
	}

	if err := s.Promote(ctx, generation); err != nil {
		return domain.Manifest{}, err
	}
	published = true
	return manifest, nil
}

// Stage creates an empty staging directory for generation.
func (s *Storage) Stage(generation string) (string, error) {
	dir := filepath.Join(s.basePath, stagingPrefix+generation)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// Promote verifies a staged generation, moves it into place and swaps
// CURRENT to it. Older generations beyond the retention count are removed.
func (s *Storage) Promote(ctx context.Context, generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staging := filepath.Join(s.basePath, stagingPrefix+generation)
	manifest, err := readManifest(staging)
	if err != nil {
		return fmt.Errorf("promote %s: %w", generation, err)
	}
	if manifest.Generation != generation {
		return fmt.Errorf("promote %s: manifest names %s", generation, manifest.Generation)
	}
	if _, err := verifyFiles(ctx, staging, manifest); err != nil {
		return fmt.Errorf("promote %s: %w", generation, err)
	}
	if err := syncDir(staging); err != nil {
		return fmt.Errorf("sync staging dir: %w", err)
	}

	final := s.GenerationDir(generation)
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("publish generation dir: %w", err)
	}
	if err := syncDir(s.basePath); err != nil {
		return fmt.Errorf("sync index dir: %w", err)
	}
	if err := s.swapCurrent(generation); err != nil {
		return fmt.Errorf("swap %s: %w", CurrentFileName, err)
	}

	s.logger.Info("generation_published",
		"generation", generation,
		"chunks", manifest.ChunkCount,
		"dimension", manifest.Dimension,
	)
	s.prune(generation)
	return nil
}

func (s *Storage) swapCurrent(generation string) error {
	tmp := filepath.Join(s.basePath, CurrentFileName+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(generation); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(s.basePath, CurrentFileName)); err != nil {
		os.Remove(tmp)
		return err
	}
	return syncDir(s.basePath)
}

func (s *Storage) prune(current string) {
	generations, err := s.Generations()
	if err != nil {
		s.logger.Warn("generation_prune_failed", "error", err)
		return
	}
	if len(generations) <= s.retain {
		return
	}
	for _, gen := range generations[:len(generations)-s.retain] {
		if gen == current {
			continue
		}
		if err := os.RemoveAll(s.GenerationDir(gen)); err != nil {
			s.logger.Warn("generation_prune_failed", "generation", gen, "error", err)
			continue
		}
		s.logger.Debug("generation_pruned", "generation", gen)
	}
}

func checkSet(set *ports.ArtifactSet) error {
	if set == nil || set.Vectors == nil || set.Lexical == nil {
		return domain.WrapError(domain.ErrInvalidInput, "save artifacts", errors.New("incomplete artifact set"))
	}
	n := len(set.Chunks)
	if n == 0 {
		return domain.WrapError(domain.ErrEmptyCorpus, "save artifacts", errors.New("no chunks"))
	}
	if set.Vectors.Len() != n || set.Lexical.Len() != n {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"save artifacts",
			fmt.Errorf("rows out of sync: %d chunks, %d vectors, %d lexical", n, set.Vectors.Len(), set.Lexical.Len()),
		)
	}
	return nil
}
