package plaintext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Extractor reads UTF-8 text files as-is.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("not valid utf-8 text: %s", filepath.Base(path))
	}
	return string(raw), nil
}
