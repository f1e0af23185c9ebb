// Package index implements the in-memory vector index: chunk embeddings and
// their metadata stored as two parallel slices that are always mutated
// together under one write lock. Searches run cosine similarity over the
// full entry set, which is exact and fast enough for corpora up to a few
// hundred thousand chunks. For larger deployments the Qdrant-backed store in
// internal/rag is the drop-in alternative.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/askdoc/askdoc-go/internal/rag"
)

// meta is the metadata record paired with one embedding. The embedding slice
// and the meta slice must hold the same number of entries at all times; a
// divergence is a corruption state, never silently repaired.
type meta struct {
	// Key is the chunk's unique sortable identifier.
	Key string `json:"key"`
	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`
	// ChunkID is the chunk's position within its document.
	ChunkID int `json:"chunk_id"`
	// Text is the chunk content.
	Text string `json:"text"`
	// PositionHint is the chunk's source location, if known.
	PositionHint string `json:"position_hint,omitempty"`
}

// Index is an in-memory rag.VectorStore with checksummed file persistence.
// A single write lock covers Insert, Clear, Persist, and Load; Search and
// Count take the read lock, so readers run concurrently and always observe
// either the pre-insert or the post-insert state.
type Index struct {
	// mu is the single-writer multiple-reader lock over all mutable state.
	mu sync.RWMutex

	// dim is the embedding dimension established by the first insert.
	// Zero means unlocked: the next insert sets it.
	dim int

	// vectors is the embedding store. Parallel to metas.
	vectors [][]float32

	// metas is the metadata store. Parallel to vectors.
	metas []meta

	// corrupt marks the index as unservable after a failed integrity check.
	// Only Clear resets it.
	corrupt bool

	// path is the persistence target. Empty disables Persist/Load.
	path string
}

// New constructs an empty Index. path is where Persist writes and Load reads;
// pass an empty string for a purely in-memory index.
func New(path string) *Index {
	return &Index{path: path}
}

// Insert stores a batch of chunks with their embeddings. The first insert
// establishes the index dimension; any chunk whose embedding length differs
// fails the whole batch with ErrDimensionMismatch before anything is
// appended, leaving existing entries untouched. Entries belonging to the
// batch's documents are dropped first, so re-ingesting a document replaces
// its previous version instead of accumulating duplicates. The embedding
// store and the metadata store are mutated together under the write lock so
// a search can never observe a partially inserted batch.
func (x *Index) Insert(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.corrupt {
		return fmt.Errorf("%w: refusing insert, clear and rebuild first", rag.ErrCorruptIndex)
	}

	dim := x.dim
	if dim == 0 {
		dim = len(chunks[0].Embedding)
		if dim == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", rag.ErrInvalidConfig, chunks[0].Key())
		}
	}

	// Validate the whole batch before touching either store.
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %s has dimension %d, index expects %d",
				rag.ErrDimensionMismatch, c.Key(), len(c.Embedding), dim)
		}
		if c.Text == "" {
			return fmt.Errorf("%w: chunk %s has empty text", rag.ErrInvalidConfig, c.Key())
		}
	}

	incoming := make(map[string]struct{}, 1)
	for _, c := range chunks {
		incoming[c.DocumentID] = struct{}{}
	}
	x.dropDocumentsLocked(incoming)

	x.dim = dim
	for _, c := range chunks {
		x.vectors = append(x.vectors, c.Embedding)
		x.metas = append(x.metas, meta{
			Key:          c.Key(),
			DocumentID:   c.DocumentID,
			ChunkID:      c.ChunkID,
			Text:         c.Text,
			PositionHint: c.PositionHint,
		})
	}
	return nil
}

// dropDocumentsLocked removes every entry whose document is in docs. Both
// stores are rewritten in place to keep them parallel. Caller holds mu.
func (x *Index) dropDocumentsLocked(docs map[string]struct{}) {
	kept := 0
	for i, m := range x.metas {
		if _, drop := docs[m.DocumentID]; drop {
			continue
		}
		x.vectors[kept] = x.vectors[i]
		x.metas[kept] = m
		kept++
	}
	x.vectors = x.vectors[:kept]
	x.metas = x.metas[:kept]
	if kept == 0 {
		x.dim = 0
	}
}

// Search returns up to topK candidates ordered by descending cosine
// similarity, ties broken by ascending chunk key. topK larger than the entry
// count is clamped; non-positive topK is rejected. An empty index returns
// ErrEmptyIndex, which callers treat as "no context available" rather than
// a hard failure.
func (x *Index) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]rag.Candidate, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", rag.ErrInvalidConfig, topK)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.corrupt {
		return nil, fmt.Errorf("%w: refusing search, clear and rebuild first", rag.ErrCorruptIndex)
	}
	if len(x.vectors) == 0 {
		return nil, rag.ErrEmptyIndex
	}
	if len(queryEmbedding) != x.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			rag.ErrDimensionMismatch, len(queryEmbedding), x.dim)
	}
	if topK > len(x.vectors) {
		topK = len(x.vectors)
	}

	candidates := make([]rag.Candidate, len(x.vectors))
	for i, vec := range x.vectors {
		m := x.metas[i]
		candidates[i] = rag.Candidate{
			Key:          m.Key,
			DocumentID:   m.DocumentID,
			ChunkID:      m.ChunkID,
			Text:         m.Text,
			PositionHint: m.PositionHint,
			Similarity:   cosineSimilarity(queryEmbedding, vec),
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Key < candidates[j].Key
	})

	candidates = candidates[:topK]
	for i := range candidates {
		candidates[i].Rank = i
	}
	return candidates, nil
}

// Count returns the number of stored entries. Safe on a corrupt index so
// operators can inspect state before clearing.
func (x *Index) Count(ctx context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.metas), nil
}

// Clear removes all entries, releases the dimension lock, and resets the
// corruption flag. It is the only way back to service after a failed
// integrity check.
func (x *Index) Clear(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.vectors = nil
	x.metas = nil
	x.dim = 0
	x.corrupt = false
	return nil
}

// Close releases nothing for the in-memory index; it exists to satisfy
// rag.VectorStore.
func (x *Index) Close() error { return nil }

// cosineSimilarity computes the cosine similarity of a and b in float64 for
// stable ordering. Zero-norm vectors compare as 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
