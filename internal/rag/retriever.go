package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultRetriever implements Retriever by combining an Embedder and a
// VectorStore. It optionally expands the query with domain synonyms before
// embedding; the expansion is a deterministic, idempotent text transform.
type DefaultRetriever struct {
	// embedder converts the (expanded) query text to a vector.
	embedder Embedder

	// store performs the similarity search.
	store VectorStore

	// synonyms maps a lowercase query term to the expansion terms appended
	// when the term occurs in the query. Nil disables expansion.
	synonyms map[string][]string
}

// NewRetriever constructs a DefaultRetriever. synonyms may be nil.
func NewRetriever(embedder Embedder, store VectorStore, synonyms map[string][]string) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder must not be nil", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store must not be nil", ErrInvalidConfig)
	}
	return &DefaultRetriever{embedder: embedder, store: store, synonyms: synonyms}, nil
}

// ExpandQuery appends the synonym terms for every configured term present in
// query. Terms already present as words are skipped, so running the expansion
// on its own output is a no-op. Matching is case-insensitive on whitespace
// delimited words; the original query text is preserved verbatim.
func (r *DefaultRetriever) ExpandQuery(query string) string {
	if len(r.synonyms) == 0 {
		return query
	}

	present := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		present[strings.Trim(w, ".,;:!?\"'()")] = true
	}

	// Iterate terms in sorted order so the expansion is deterministic
	// regardless of map iteration order.
	terms := make([]string, 0, len(r.synonyms))
	for t := range r.synonyms {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	var extra []string
	for _, term := range terms {
		if !present[term] {
			continue
		}
		for _, syn := range r.synonyms[term] {
			lower := strings.ToLower(syn)
			if present[lower] {
				continue
			}
			present[lower] = true
			extra = append(extra, syn)
		}
	}

	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}

// Retrieve expands and embeds the query, then delegates to the store.
// A search against an empty index returns an empty candidate list: that is
// the designed "no documents ingested yet" path, not a failure. A failed
// embedding call is surfaced as ErrEmbeddingUnavailable and never retried
// here, so callers can distinguish "no documents" from "backend down".
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Candidate, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", ErrInvalidConfig, topK)
	}

	expanded := r.ExpandQuery(query)

	embeddings, err := r.embedder.Embed(ctx, []string{expanded})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector for query", ErrEmbeddingUnavailable)
	}

	candidates, err := r.store.Search(ctx, embeddings[0], topK)
	if err != nil {
		if errors.Is(err, ErrEmptyIndex) {
			return []Candidate{}, nil
		}
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return candidates, nil
}
