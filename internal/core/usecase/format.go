package usecase

import (
	"fmt"
	"strings"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

const (
	NoEvidenceMessage = "No relevant information found."
	ErrorPrefix       = "Error: "

	resultSeparator = "-----------------"
)

// FormatResult renders the caller-facing string contract.
func FormatResult(result *domain.QueryResult) string {
	if result == nil || result.Status == domain.QueryStatusEmpty || len(result.Results) == 0 {
		return NoEvidenceMessage
	}

	blocks := make([]string, 0, len(result.Results))
	for _, r := range result.Results {
		blocks = append(blocks, fmt.Sprintf(
			"[Source: %s | Score: %.4f]\n%s\n%s",
			r.Chunk.Source,
			r.Score,
			r.Chunk.Content,
			resultSeparator,
		))
	}
	return strings.Join(blocks, "\n")
}

func FormatError(err error) string {
	if err == nil {
		return ErrorPrefix + "unknown failure"
	}
	return ErrorPrefix + err.Error()
}
