package rag

import (
	"fmt"
	"strings"
)

// segmentSeparator joins consecutive context segments.
const segmentSeparator = "\n\n"

// provenanceTag renders the per-chunk header that makes each context segment
// self-describing for the generation step.
func provenanceTag(c Candidate) string {
	if c.PositionHint != "" {
		return fmt.Sprintf("[source: %s | %s]", c.DocumentID, c.PositionHint)
	}
	return fmt.Sprintf("[source: %s]", c.DocumentID)
}

// Assemble concatenates candidate chunk texts, in the given order, into a
// single context string of at most maxContextSize characters. Each chunk is
// prefixed with a provenance tag. Assembly stops at the first chunk that no
// longer fits; if even the first chunk exceeds the budget its segment is
// hard-truncated to exactly maxContextSize so the generation step always
// receives something when candidates exist.
//
// Truncated is true whenever any candidate text was cut or dropped, and
// TruncatedFraction is the fraction of total candidate text left out.
// Empty candidates produce an empty context with Truncated == false, which
// is how "no relevant information" is signalled downstream, distinct from
// a budget overflow. Pure function of its inputs.
func Assemble(candidates []Candidate, maxContextSize int) (AssembledContext, error) {
	if maxContextSize <= 0 {
		return AssembledContext{}, fmt.Errorf("%w: max context size must be positive, got %d", ErrInvalidConfig, maxContextSize)
	}

	out := AssembledContext{}
	if len(candidates) == 0 {
		return out, nil
	}

	totalChars := 0
	for _, c := range candidates {
		totalChars += len(c.Text)
	}

	var b strings.Builder
	includedChars := 0
	seenDoc := make(map[string]bool)

	for i, c := range candidates {
		segment := provenanceTag(c) + "\n" + c.Text
		sep := ""
		if i > 0 {
			sep = segmentSeparator
		}

		if b.Len()+len(sep)+len(segment) <= maxContextSize {
			b.WriteString(sep)
			b.WriteString(segment)
			includedChars += len(c.Text)
			out.IncludedChunkKeys = append(out.IncludedChunkKeys, c.Key)
			if !seenDoc[c.DocumentID] {
				seenDoc[c.DocumentID] = true
				out.SourceDocuments = append(out.SourceDocuments, c.DocumentID)
			}
			continue
		}

		if i == 0 {
			// The very first chunk alone exceeds the budget: hard-truncate
			// its segment so the context fills the budget exactly.
			cut := segment[:maxContextSize]
			b.WriteString(cut)
			if kept := maxContextSize - (len(segment) - len(c.Text)); kept > 0 {
				includedChars += kept
			}
			out.IncludedChunkKeys = append(out.IncludedChunkKeys, c.Key)
			out.SourceDocuments = append(out.SourceDocuments, c.DocumentID)
		}
		out.Truncated = true
		break
	}

	out.Text = b.String()
	if out.Truncated && totalChars > 0 {
		out.TruncatedFraction = 1 - float64(includedChars)/float64(totalChars)
	}
	return out, nil
}
