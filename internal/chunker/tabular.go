package chunker

import (
	"fmt"
	"strings"

	"github.com/askdoc/askdoc-go/internal/rag"
)

// DefaultRowsPerChunk is the number of data rows grouped into one tabular
// chunk when the caller does not override it.
const DefaultRowsPerChunk = 20

// DefaultHeaderCadence is how often the header line is repeated inside a
// tabular chunk, in data rows, so a chunk stays readable even when a
// retrieval hit lands mid-table.
const DefaultHeaderCadence = 10

// SplitRows cuts tabular data into row-group chunks. header is the column
// header line; rows are the data rows in source order. Every chunk starts
// with the header, repeats it every headerCadence data rows, and records the
// 1-based row range it covers as its position hint.
//
// rowsPerChunk and headerCadence must be positive, otherwise ErrInvalidConfig.
// Blank rows are skipped; a chunk that would contain only blank rows is
// dropped silently. Pure function of its inputs.
func SplitRows(docID, header string, rows []string, rowsPerChunk, headerCadence int) ([]rag.Chunk, error) {
	if rowsPerChunk <= 0 {
		return nil, fmt.Errorf("%w: rows per chunk must be positive, got %d", rag.ErrInvalidConfig, rowsPerChunk)
	}
	if headerCadence <= 0 {
		return nil, fmt.Errorf("%w: header cadence must be positive, got %d", rag.ErrInvalidConfig, headerCadence)
	}

	header = strings.TrimSpace(header)

	var chunks []rag.Chunk
	nextID := 0
	for start := 0; start < len(rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}

		var lines []string
		written := 0
		for _, row := range rows[start:end] {
			row = strings.TrimSpace(row)
			if row == "" {
				continue
			}
			if header != "" && written%headerCadence == 0 {
				lines = append(lines, header)
			}
			lines = append(lines, row)
			written++
		}

		if written == 0 {
			continue
		}

		chunks = append(chunks, rag.Chunk{
			DocumentID:   docID,
			ChunkID:      nextID,
			Text:         strings.Join(lines, "\n"),
			PositionHint: fmt.Sprintf("rows %d-%d", start+1, end),
		})
		nextID++
	}

	return chunks, nil
}
