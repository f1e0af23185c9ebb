// Package rag defines the core types and interfaces of the retrieval
// pipeline: chunks, retrieval candidates, assembled context, the error
// taxonomy, and the Embedder/VectorStore/Retriever contracts. Concrete
// implementations (the in-memory index, Qdrant, the embedding backends)
// satisfy these interfaces so the engine layer never depends on a
// specific backend.
package rag

import (
	"fmt"
	"time"
)

// Format classifies the source artifact a document was extracted from.
type Format string

const (
	// FormatText is plain text or markdown.
	FormatText Format = "text"
	// FormatPDF is a PDF whose text has been extracted upstream.
	FormatPDF Format = "pdf"
	// FormatDocx is a Word document whose text has been extracted upstream.
	FormatDocx Format = "docx"
	// FormatTabular is a spreadsheet or CSV source chunked by row groups.
	FormatTabular Format = "tabular"
)

// Document describes an ingested source artifact. Immutable once ingested;
// re-ingesting under the same ID replaces the previous version.
type Document struct {
	// ID is the stable identifier derived from the source file name.
	ID string
	// Format classifies the source artifact.
	Format Format
	// Chunks is the number of chunks produced at ingestion time.
	Chunks int
	// IngestedAt is when the document was ingested.
	IngestedAt time.Time
}

// Chunk is the atomic unit of retrieval: a bounded contiguous span of a
// document's text plus its provenance and, once computed, its embedding.
type Chunk struct {
	// DocumentID identifies the source document.
	DocumentID string

	// ChunkID is the monotonic position of this chunk within its document.
	ChunkID int

	// Text is the chunk content. Never empty after trimming.
	Text string

	// PositionHint locates the chunk in the source, e.g. "page 3" or
	// "rows 40-59". Empty when the source carries no position information.
	PositionHint string

	// Embedding is the fixed-length vector for Text. Nil until computed;
	// owned exclusively by the chunk afterwards.
	Embedding []float32
}

// Key returns the globally unique, sortable identifier for the chunk.
// ChunkID is zero-padded so lexicographic order matches numeric order,
// which makes the key usable as the deterministic search tie-break.
func (c Chunk) Key() string {
	return fmt.Sprintf("%s#%08d", c.DocumentID, c.ChunkID)
}

// Candidate is an ephemeral retrieval result produced per query.
// Candidates are never persisted and must not be shared across queries.
type Candidate struct {
	// Key is the chunk's unique identifier (Chunk.Key).
	Key string
	// DocumentID identifies the source document.
	DocumentID string
	// ChunkID is the chunk's position within its document.
	ChunkID int
	// Text is the chunk content, carried so the assembler needs no
	// second lookup against the store.
	Text string
	// PositionHint is the chunk's source location, if known.
	PositionHint string
	// Similarity is the cosine similarity to the query embedding, in [-1, 1].
	Similarity float64
	// Rank is the 0-based position after similarity-descending sort.
	Rank int
}

// AssembledContext is the bounded context string handed to the generation
// step, together with its truncation accounting and provenance. Created per
// query, consumed once, then discarded.
type AssembledContext struct {
	// Text is the assembled context, at most the configured budget in length.
	Text string

	// IncludedChunkKeys lists the chunks that made it into Text, in order.
	IncludedChunkKeys []string

	// SourceDocuments lists the distinct document IDs contributing to Text,
	// ordered by first appearance. Callers use this to display provenance.
	SourceDocuments []string

	// Truncated is true when at least one candidate chunk was cut or dropped
	// to fit the budget.
	Truncated bool

	// TruncatedFraction is the fraction of total candidate text that was not
	// included. Zero exactly when Truncated is false.
	TruncatedFraction float64
}
