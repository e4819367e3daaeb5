package spreadsheet

import (
	"fmt"
	"strings"
)

// rowSentence renders one data row as "<prefix> contains: col is val, ...".
// Empty cells are left out; a row with no values yields "".
func rowSentence(prefix string, header, row []string) string {
	parts := make([]string, 0, len(row))
	for i, raw := range row {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is %s", columnName(header, i), val))
	}
	if len(parts) == 0 {
		return ""
	}
	return prefix + " contains: " + strings.Join(parts, ", ") + "."
}

func columnName(header []string, i int) string {
	if i < len(header) {
		if name := strings.TrimSpace(header[i]); name != "" {
			return name
		}
	}
	return fmt.Sprintf("column %d", i+1)
}
