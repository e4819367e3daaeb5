package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/extractor/docx"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/extractor/pdf"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/extractor/plaintext"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/extractor/spreadsheet"
)

// Registry dispatches extraction by lower-cased file extension.
type Registry struct {
	byExt map[string]ports.TextExtractor
}

func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]ports.TextExtractor)}
	text := plaintext.NewExtractor()
	r.Register(".txt", text)
	r.Register(".md", text)
	r.Register(".pdf", pdf.NewExtractor())
	r.Register(".docx", docx.NewExtractor())
	r.Register(".csv", spreadsheet.NewCSVExtractor())
	r.Register(".xlsx", spreadsheet.NewXLSXExtractor())
	return r
}

func (r *Registry) Register(ext string, extractor ports.TextExtractor) {
	r.byExt[strings.ToLower(ext)] = extractor
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	extractor, ok := r.byExt[ext]
	if !ok {
		if ext == "" {
			ext = "no extension"
		}
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("%s", ext))
	}
	return extractor.Extract(ctx, path)
}
