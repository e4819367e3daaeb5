package spreadsheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CSVExtractor flattens a CSV file into one sentence per data row. The first
// record is the header.
type CSVExtractor struct{}

func NewCSVExtractor() *CSVExtractor {
	return &CSVExtractor{}
}

func (e *CSVExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	source := filepath.Base(path)
	var out strings.Builder
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv row %d: %w", index, err)
		}

		sentence := rowSentence(fmt.Sprintf("Row %d from %s", index, source), header, record)
		if sentence == "" {
			continue
		}
		out.WriteString(sentence)
		out.WriteByte('\n')
	}
	return out.String(), nil
}
