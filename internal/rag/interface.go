package rag

import "context"

// Embedder converts text into dense vector embeddings. For a fixed model
// version the mapping is deterministic: the same text always produces the
// same vector within one running instance.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice, and batching is
	// semantically equivalent to one call per item.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists chunk embeddings with their metadata and serves
// nearest-neighbour searches over them.
//
// Writer operations (Insert, Clear) are mutually exclusive with each other
// and with in-flight searches; readers (Search, Count) may run concurrently.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Insert stores a batch of chunks with pre-computed embeddings. The
	// first insert establishes the index dimension; later inserts whose
	// embeddings differ in length fail with ErrDimensionMismatch and leave
	// existing entries untouched. Embeddings and metadata are committed
	// atomically.
	Insert(ctx context.Context, chunks []Chunk) error

	// Search returns up to topK candidates ordered by descending similarity,
	// ties broken by ascending chunk key. topK is clamped to the entry count
	// when larger. Returns ErrEmptyIndex when the store holds zero entries.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Candidate, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Clear removes all entries and releases the dimension lock, allowing a
	// new dimension on the next insert.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Persister is the optional durable-storage extension of VectorStore.
// The in-memory index implements it; network-backed stores (Qdrant) are
// already durable and do not.
type Persister interface {
	// Persist serializes the full index plus metadata as one logical unit.
	// A partial write is detectable on load.
	Persist() error

	// Load replaces the in-memory state from durable storage. Returns
	// ErrCorruptIndex when the persisted form fails its integrity check.
	Load() error
}

// Retriever fetches the ranked candidate list for a natural-language query.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve embeds the query and returns up to topK candidates. An empty
	// index yields an empty slice, not an error; an unreachable embedding
	// backend yields ErrEmbeddingUnavailable.
	Retrieve(ctx context.Context, query string, topK int) ([]Candidate, error)
}
