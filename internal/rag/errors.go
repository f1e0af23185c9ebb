package rag

import "errors"

// Error kinds for the retrieval pipeline. Callers branch on these with
// errors.Is, never on message text.
//
// ErrEmptyIndex is an expected empty-state condition, not a failure: the
// retriever converts it into an empty candidate list and the layer above
// renders it as "no relevant information found". ErrDimensionMismatch and
// ErrCorruptIndex are consistency violations that are fatal for the affected
// index instance until it is cleared and rebuilt.
var (
	// ErrInvalidConfig reports a configuration contract violation, e.g.
	// overlap >= chunk size or a non-positive top-k, rejected at call time.
	ErrInvalidConfig = errors.New("rag: invalid configuration")

	// ErrDimensionMismatch reports an embedding whose length differs from the
	// dimension established by the index's first insert.
	ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")

	// ErrEmptyIndex reports a search against an index with zero entries.
	ErrEmptyIndex = errors.New("rag: index is empty")

	// ErrCorruptIndex reports an index whose embedding store and metadata
	// store disagree, or whose persisted form failed its integrity check.
	// The index refuses to serve searches until explicitly cleared.
	ErrCorruptIndex = errors.New("rag: index is corrupt")

	// ErrEmbeddingUnavailable reports a failed call to the embedding backend,
	// distinct from "no documents ingested" so callers can retry or degrade.
	ErrEmbeddingUnavailable = errors.New("rag: embedding backend unavailable")
)
