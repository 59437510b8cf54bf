package normalize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// decodeCSV flattens a CSV file into prose: one line per row, with header
// fields used as "field: value" labels so row content stays legible as
// unstructured text for chunking.
func decodeCSV(body []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}

	header := rows[0]
	var out strings.Builder
	for _, row := range rows[1:] {
		var parts []string
		for i, val := range row {
			if val == "" {
				continue
			}
			if i < len(header) && header[i] != "" {
				parts = append(parts, header[i]+": "+val)
			} else {
				parts = append(parts, val)
			}
		}
		if len(parts) == 0 {
			continue
		}
		out.WriteString(strings.Join(parts, ", "))
		out.WriteByte('\n')
	}
	return out.String(), nil
}
