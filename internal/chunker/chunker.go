// Package chunker splits extracted document text into bounded, overlapping
// chunks with source provenance. Splitting is a pure transformation: the same
// input always yields the same chunks, and nothing is persisted here.
//
// Prose text is split by a sliding character window that prefers to cut at a
// sentence boundary when one exists close to the target size. Tabular sources
// are split by row groups instead, with the header line repeated at a fixed
// cadence so every chunk is self-describing without its neighbours.
package chunker

import (
	"fmt"
	"strings"

	"github.com/askdoc/askdoc-go/internal/rag"
)

// boundaryLookbackDivisor bounds how far back from the hard cut point the
// splitter searches for a sentence boundary: chunkSize / divisor characters.
// A fifth of the window keeps chunks near their target size while avoiding
// mid-sentence cuts in ordinary prose.
const boundaryLookbackDivisor = 5

// sentenceEnders are the runes that terminate a sentence when followed by
// whitespace or end-of-window.
const sentenceEnders = ".!?\n"

// Split cuts text into overlapping chunks of at most chunkSize characters,
// stepping chunkSize-overlap characters per chunk. chunkSize and overlap must
// be positive with overlap < chunkSize, otherwise ErrInvalidConfig.
//
// Each window is cut at the last sentence boundary found within the lookback
// distance of the target end; when no boundary exists the cut lands at
// chunkSize exactly, so overlap accounting stays deterministic. Chunks that
// are empty after trimming whitespace are dropped silently. ChunkIDs are
// assigned monotonically from 0.
func Split(docID, text string, chunkSize, overlap int) ([]rag.Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", rag.ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size), got %d", rag.ErrInvalidConfig, overlap)
	}

	text = strings.TrimRight(text, " \t\r\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	// The lookback never exceeds the overlap: the stride is fixed at
	// chunkSize-overlap, so a cut earlier than end-overlap would leave a gap
	// between consecutive chunks.
	lookback := chunkSize / boundaryLookbackDivisor
	if lookback > overlap {
		lookback = overlap
	}
	step := chunkSize - overlap

	var chunks []rag.Chunk
	nextID := 0
	for start := 0; start < len(text); start += step {
		end := start + chunkSize
		if end >= len(text) {
			end = len(text)
		} else if cut := boundaryCut(text, start, end, lookback); cut > start {
			end = cut
		}

		body := strings.TrimSpace(text[start:end])
		if body != "" {
			chunks = append(chunks, rag.Chunk{
				DocumentID: docID,
				ChunkID:    nextID,
				Text:       body,
			})
			nextID++
		}
	}

	return chunks, nil
}

// boundaryCut returns the position just after the last sentence-ending rune
// within the final lookback characters of [start, end), or 0 when no boundary
// is found and the caller should cut at end exactly.
func boundaryCut(text string, start, end, lookback int) int {
	floor := end - lookback
	if floor < start+1 {
		floor = start + 1
	}
	for i := end - 1; i >= floor; i-- {
		if strings.ContainsRune(sentenceEnders, rune(text[i])) {
			return i + 1
		}
	}
	return 0
}
