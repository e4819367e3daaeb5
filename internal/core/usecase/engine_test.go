package usecase

import (
	"testing"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

func TestNewEngineAssignsOrdinalIDs(t *testing.T) {
	engine, err := NewEngine(artifactSet([]string{"a", "b"}, nil, nil))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	chunk, ok := engine.Chunk(1)
	if !ok || chunk.ID != 1 || chunk.Content != "b" || chunk.ChunkIndex != 1 {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}
	if _, ok := engine.Chunk(2); ok {
		t.Fatalf("expected out of range lookup to fail")
	}
}

func TestNewEngineRejectsInconsistentSets(t *testing.T) {
	cases := map[string]func() error{
		"nil set": func() error { _, err := NewEngine(nil); return err },
		"no chunks": func() error {
			_, err := NewEngine(artifactSet(nil, nil, nil))
			return err
		},
		"lexical rows": func() error {
			set := artifactSet([]string{"a"}, nil, nil)
			set.Lexical = &lexicalIndexFake{rows: 2}
			_, err := NewEngine(set)
			return err
		},
		"manifest count": func() error {
			set := artifactSet([]string{"a"}, nil, nil)
			set.Manifest.ChunkCount = 7
			_, err := NewEngine(set)
			return err
		},
		"missing vectors": func() error {
			set := artifactSet([]string{"a"}, nil, nil)
			set.Vectors = nil
			_, err := NewEngine(set)
			return err
		},
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			if err := fn(); !domain.IsKind(err, domain.ErrInitialization) {
				t.Fatalf("expected initialization error, got %v", err)
			}
		})
	}
}
