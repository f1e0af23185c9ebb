package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// stubEmbedder returns a fixed vector for any input, or a canned error.
type stubEmbedder struct {
	vec  []float32
	err  error
	seen []string
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.seen = append(s.seen, texts...)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

// stubStore serves canned candidates or a canned error.
type stubStore struct {
	candidates []Candidate
	err        error
}

func (s *stubStore) Insert(ctx context.Context, chunks []Chunk) error { return nil }
func (s *stubStore) Search(ctx context.Context, q []float32, topK int) ([]Candidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	if topK > len(s.candidates) {
		topK = len(s.candidates)
	}
	return s.candidates[:topK], nil
}
func (s *stubStore) Count(ctx context.Context) (int, error) { return len(s.candidates), nil }
func (s *stubStore) Clear(ctx context.Context) error        { return nil }
func (s *stubStore) Close() error                           { return nil }

func Test_Retriever_EmptyIndexReturnsEmptySlice(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(&stubEmbedder{vec: []float32{1}}, &stubStore{err: ErrEmptyIndex}, nil)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	got, err := r.Retrieve(context.Background(), "any query", 5)
	if err != nil {
		t.Fatalf("empty index must not surface an error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want empty candidate list, got %d", len(got))
	}
}

func Test_Retriever_EmbedderFailureIsEmbeddingUnavailable(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(&stubEmbedder{err: fmt.Errorf("connection refused")}, &stubStore{}, nil)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	_, err = r.Retrieve(context.Background(), "q", 5)
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("want ErrEmbeddingUnavailable, got %v", err)
	}
}

func Test_Retriever_NonPositiveTopKRejected(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(&stubEmbedder{vec: []float32{1}}, &stubStore{}, nil)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	for _, k := range []int{0, -3} {
		if _, err := r.Retrieve(context.Background(), "q", k); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("top-k %d: want ErrInvalidConfig, got %v", k, err)
		}
	}
}

func Test_Retriever_NilDependenciesRejected(t *testing.T) {
	t.Parallel()
	if _, err := NewRetriever(nil, &stubStore{}, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil embedder: want ErrInvalidConfig, got %v", err)
	}
	if _, err := NewRetriever(&stubEmbedder{}, nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil store: want ErrInvalidConfig, got %v", err)
	}
}

func Test_Retriever_PassesCandidatesThrough(t *testing.T) {
	t.Parallel()
	want := []Candidate{
		{Key: "a#00000000", Similarity: 0.9, Rank: 0},
		{Key: "a#00000001", Similarity: 0.7, Rank: 1},
	}
	r, err := NewRetriever(&stubEmbedder{vec: []float32{1}}, &stubStore{candidates: want}, nil)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	got, err := r.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 || got[0].Key != want[0].Key || got[1].Key != want[1].Key {
		t.Errorf("candidates not passed through: %+v", got)
	}
}

func Test_ExpandQuery_AppendsSynonymsOnce(t *testing.T) {
	t.Parallel()
	syn := map[string][]string{
		"invoice": {"billing", "receipt"},
		"vacation": {"leave", "pto"},
	}
	r, err := NewRetriever(&stubEmbedder{vec: []float32{1}}, &stubStore{}, syn)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	got := r.ExpandQuery("How do I submit an invoice?")
	want := "How do I submit an invoice? billing receipt"
	if got != want {
		t.Errorf("expand = %q, want %q", got, want)
	}

	// Idempotent: expanding the expansion changes nothing.
	if again := r.ExpandQuery(got); again != got {
		t.Errorf("re-expansion changed the query: %q", again)
	}
}

func Test_ExpandQuery_NoMatchIsIdentity(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(&stubEmbedder{vec: []float32{1}}, &stubStore{}, map[string][]string{"invoice": {"billing"}})
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	q := "where is the office?"
	if got := r.ExpandQuery(q); got != q {
		t.Errorf("expand = %q, want input unchanged", got)
	}
}

func Test_ExpandQuery_Deterministic(t *testing.T) {
	t.Parallel()
	syn := map[string][]string{
		"alpha": {"one", "two"},
		"beta":  {"three"},
		"gamma": {"four"},
	}
	r, err := NewRetriever(&stubEmbedder{vec: []float32{1}}, &stubStore{}, syn)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	first := r.ExpandQuery("alpha beta gamma")
	for range 10 {
		if got := r.ExpandQuery("alpha beta gamma"); got != first {
			t.Fatalf("expansion not deterministic: %q vs %q", got, first)
		}
	}
}

func Test_Retriever_EmbedsExpandedQuery(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{vec: []float32{1}}
	r, err := NewRetriever(emb, &stubStore{}, map[string][]string{"invoice": {"billing"}})
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "invoice help", 1); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(emb.seen) != 1 || emb.seen[0] != "invoice help billing" {
		t.Errorf("embedder saw %q, want the expanded query", emb.seen)
	}
}
