package ports

import (
	"context"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

// KnowledgeQueryService is the inbound contract for hybrid retrieval.
type KnowledgeQueryService interface {
	// Search returns the typed outcome; errors carry domain.ErrInitialization,
	// domain.ErrRetrievalFailure or domain.ErrInvalidInput.
	Search(ctx context.Context, text string, k int) (*domain.QueryResult, error)
	// Query renders the string contract and never returns an error.
	Query(ctx context.Context, text string, k int) string
}

// KnowledgeIndexReader exposes readiness of the served generation.
type KnowledgeIndexReader interface {
	Generation() (string, error)
}

// IndexBuilder is the inbound contract for the offline build.
type IndexBuilder interface {
	Build(ctx context.Context, dir string) (*domain.BuildReport, error)
}
