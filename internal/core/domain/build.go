package domain

import "time"

// Manifest describes one published index generation.
type Manifest struct {
	Version    int               `json:"version"`
	Generation string            `json:"generation"`
	CreatedAt  time.Time         `json:"created_at"`
	ChunkCount int               `json:"chunk_count"`
	Dimension  int               `json:"dimension"`
	Files      map[string]uint32 `json:"files"`
}

type SkippedFile struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

type BuildReport struct {
	Generation   string        `json:"generation"`
	FilesSeen    int           `json:"files_seen"`
	FilesIndexed int           `json:"files_indexed"`
	FilesSkipped []SkippedFile `json:"files_skipped,omitempty"`
	Chunks       int           `json:"chunks"`
	Dimension    int           `json:"dimension"`
	Duration     time.Duration `json:"duration"`
}

type BuildStatus string

const (
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
)

// BuildRecord is one ledger row describing a finished build attempt.
type BuildRecord struct {
	ID           string        `json:"id"`
	Generation   string        `json:"generation,omitempty"`
	Status       BuildStatus   `json:"status"`
	FilesSeen    int           `json:"files_seen"`
	FilesIndexed int           `json:"files_indexed"`
	FilesSkipped []SkippedFile `json:"files_skipped,omitempty"`
	Chunks       int           `json:"chunks"`
	Dimension    int           `json:"dimension"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
