package spreadsheet

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXExtractor flattens every sheet of a workbook into one sentence per data
// row. The first row of each sheet is its header.
type XLSXExtractor struct{}

func NewXLSXExtractor() *XLSXExtractor {
	return &XLSXExtractor{}
}

func (e *XLSXExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	source := filepath.Base(path)
	var out strings.Builder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}

		header := rows[0]
		for index, row := range rows[1:] {
			prefix := fmt.Sprintf("In sheet '%s' from %s, row %d", sheet, source, index)
			sentence := rowSentence(prefix, header, row)
			if sentence == "" {
				continue
			}
			out.WriteString(sentence)
			out.WriteByte('\n')
		}
	}
	return out.String(), nil
}
