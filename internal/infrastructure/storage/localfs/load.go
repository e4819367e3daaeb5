package localfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/lexical/bm25"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/vectorindex/flat"
)

// Load reads the generation named by CURRENT. Any missing, corrupt or
// inconsistent artifact is an initialization error.
func (s *Storage) Load(ctx context.Context) (*ports.ArtifactSet, error) {
	generation, err := s.Current()
	if err != nil {
		return nil, err
	}
	return s.LoadGeneration(ctx, generation)
}

func (s *Storage) LoadGeneration(ctx context.Context, generation string) (*ports.ArtifactSet, error) {
	set, err := s.loadGeneration(ctx, generation)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInitialization, "load generation "+generation, err)
	}
	return set, nil
}

// Manifest returns the manifest of a published generation.
func (s *Storage) Manifest(generation string) (domain.Manifest, error) {
	return readManifest(s.GenerationDir(generation))
}

func (s *Storage) loadGeneration(ctx context.Context, generation string) (*ports.ArtifactSet, error) {
	dir := s.GenerationDir(generation)
	manifest, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	if manifest.Generation != generation {
		return nil, fmt.Errorf("manifest names generation %s", manifest.Generation)
	}

	files, err := verifyFiles(ctx, dir, manifest)
	if err != nil {
		return nil, err
	}

	var chunks []domain.ChunkRecord
	if err := json.Unmarshal(files[ChunksFileName], &chunks); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ChunksFileName, err)
	}
	vectors, err := flat.Read(bytes.NewReader(files[VectorsFileName]))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", VectorsFileName, err)
	}
	lexical, err := bm25.Read(bytes.NewReader(files[LexicalFileName]))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", LexicalFileName, err)
	}

	if len(chunks) != manifest.ChunkCount || vectors.Len() != manifest.ChunkCount || lexical.Len() != manifest.ChunkCount {
		return nil, fmt.Errorf("row counts disagree: manifest %d, chunks %d, vectors %d, lexical %d",
			manifest.ChunkCount, len(chunks), vectors.Len(), lexical.Len())
	}
	if vectors.Dimension() != manifest.Dimension {
		return nil, fmt.Errorf("vector dimension %d, manifest declares %d", vectors.Dimension(), manifest.Dimension)
	}

	return &ports.ArtifactSet{
		Manifest: manifest,
		Chunks:   chunks,
		Vectors:  vectors,
		Lexical:  lexical,
	}, nil
}
