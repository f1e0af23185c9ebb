package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/askdoc/askdoc-go/internal/catalog"
	"github.com/askdoc/askdoc-go/internal/index"
	"github.com/askdoc/askdoc-go/internal/rag"
)

// keywordEmbedder embeds text into a 3-dimensional vector keyed by keyword
// presence, so tests control similarity precisely. Safe for concurrent use.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		v := []float32{0.1, 0.1, 0.1}
		if strings.Contains(lower, "vacation") {
			v = []float32{1, 0, 0}
		} else if strings.Contains(lower, "expense") {
			v = []float32{0, 1, 0}
		}
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// newTestEngine builds an engine over the in-memory index and catalog.
func newTestEngine(t *testing.T, cfg Config) (*Engine, *keywordEmbedder) {
	t.Helper()

	emb := &keywordEmbedder{}
	cfg.Embedder = emb
	if cfg.Store == nil {
		cfg.Store = index.New("")
	}
	if cfg.Catalog == nil {
		cat, err := catalog.Open(":memory:")
		if err != nil {
			t.Fatalf("open catalog: %v", err)
		}
		t.Cleanup(func() { _ = cat.Close() })
		cfg.Catalog = cat
	}

	e, err := New(&cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, emb
}

func Test_Engine_IngestThenQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, Config{})

	res, err := e.Ingest(ctx, "handbook", rag.FormatText, "Employees accrue twenty vacation days per year.")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Chunks != 1 {
		t.Fatalf("want 1 chunk, got %d", res.Chunks)
	}
	if _, err := e.Ingest(ctx, "finance", rag.FormatText, "Expense reports are filed through the portal."); err != nil {
		t.Fatalf("ingest finance: %v", err)
	}

	n, err := e.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	qr, err := e.AnswerContext(ctx, "how much vacation do I get?", 5)
	if err != nil {
		t.Fatalf("answer context: %v", err)
	}
	if len(qr.Candidates) == 0 {
		t.Fatal("no candidates survived")
	}
	if qr.Candidates[0].DocumentID != "handbook" {
		t.Errorf("best candidate from %q, want handbook", qr.Candidates[0].DocumentID)
	}
	if !strings.Contains(qr.Context.Text, "[source: handbook]") {
		t.Errorf("context missing provenance tag: %q", qr.Context.Text)
	}
	if qr.Confidence <= 0 || qr.Confidence > 1 {
		t.Errorf("confidence %f outside (0, 1]", qr.Confidence)
	}

	docs, err := e.Documents(ctx)
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("catalog holds %d records, want 2", len(docs))
	}
}

func Test_Engine_EmptyIndexQuery(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})

	qr, err := e.AnswerContext(context.Background(), "anything?", 5)
	if err != nil {
		t.Fatalf("answer context on empty index: %v", err)
	}
	if len(qr.Candidates) != 0 || qr.Confidence != 0 || qr.Context.Text != "" {
		t.Errorf("empty index should yield an empty result: %+v", qr)
	}
}

func Test_Engine_EmbedderFailureSurfaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, emb := newTestEngine(t, Config{})

	emb.err = errors.New("connection refused")
	if _, err := e.Ingest(ctx, "doc", rag.FormatText, "some text"); !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("ingest: want ErrEmbeddingUnavailable, got %v", err)
	}
	if _, err := e.AnswerContext(ctx, "q", 5); !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("query: want ErrEmbeddingUnavailable, got %v", err)
	}
}

func Test_Engine_QueryCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, emb := newTestEngine(t, Config{})

	if _, err := e.Ingest(ctx, "handbook", rag.FormatText, "vacation policy text"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	first, err := e.AnswerContext(ctx, "vacation?", 5)
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	if first.CacheHit {
		t.Errorf("first query must miss the cache")
	}
	callsAfterFirst := emb.callCount()

	second, err := e.AnswerContext(ctx, "vacation?", 5)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if !second.CacheHit {
		t.Errorf("second identical query must hit the cache")
	}
	if emb.callCount() != callsAfterFirst {
		t.Errorf("cache hit still called the embedder")
	}
	if second.Context.Text != first.Context.Text {
		t.Errorf("cached context differs")
	}

	// A writer-class operation invalidates the cache.
	if _, err := e.Ingest(ctx, "other", rag.FormatText, "expense text"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	third, err := e.AnswerContext(ctx, "vacation?", 5)
	if err != nil {
		t.Fatalf("third query: %v", err)
	}
	if third.CacheHit {
		t.Errorf("query after ingest must miss the cache")
	}
}

func Test_Engine_DifferentTopKBypassesCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, Config{})

	if _, err := e.Ingest(ctx, "doc", rag.FormatText, "vacation text"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := e.AnswerContext(ctx, "vacation?", 3); err != nil {
		t.Fatalf("query k=3: %v", err)
	}
	qr, err := e.AnswerContext(ctx, "vacation?", 4)
	if err != nil {
		t.Fatalf("query k=4: %v", err)
	}
	if qr.CacheHit {
		t.Errorf("different top-k must not share a cache entry")
	}
}

func Test_Engine_ClearResetsEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, Config{})

	if _, err := e.Ingest(ctx, "doc", rag.FormatText, "vacation text"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := e.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	n, err := e.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count after clear = %d, want 0", n)
	}
	docs, err := e.Documents(ctx)
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("catalog not cleared: %d records", len(docs))
	}
}

func Test_Engine_IngestRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, Config{RowsPerChunk: 2, HeaderCadence: 2})

	rows := []string{"alice,20", "bob,25", "carol,18"}
	res, err := e.IngestRows(ctx, "rates", "name,vacation_days", rows)
	if err != nil {
		t.Fatalf("ingest rows: %v", err)
	}
	if res.Format != rag.FormatTabular {
		t.Errorf("format = %s, want tabular", res.Format)
	}
	if res.Chunks != 2 {
		t.Errorf("chunks = %d, want 2", res.Chunks)
	}

	docs, err := e.Documents(ctx)
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Format != "tabular" {
		t.Errorf("catalog record: %+v", docs)
	}
}

func Test_Engine_PersistAndLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")

	idx := index.New(path)
	e, _ := newTestEngine(t, Config{Store: idx, Persister: idx})
	if _, err := e.Ingest(ctx, "doc", rag.FormatText, "vacation text"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := e.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	fresh := index.New(path)
	e2, _ := newTestEngine(t, Config{Store: fresh, Persister: fresh})
	if err := e2.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	n, err := e2.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count after load = %d, want 1", n)
	}
}

func Test_Engine_LargeDocumentEmbedsAllChunks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// Small batches force several concurrent embedding calls.
	e, emb := newTestEngine(t, Config{ChunkSize: 100, ChunkOverlap: 20, EmbedBatchSize: 2, EmbedConcurrency: 3})

	text := strings.Repeat("vacation policy details here. ", 60)
	res, err := e.Ingest(ctx, "big", rag.FormatText, text)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Chunks < 10 {
		t.Fatalf("expected many chunks, got %d", res.Chunks)
	}
	if emb.callCount() < res.Chunks/2 {
		t.Errorf("expected batched embedding calls, got %d for %d chunks", emb.callCount(), res.Chunks)
	}

	n, _ := e.Count(ctx)
	if n != res.Chunks {
		t.Errorf("indexed %d chunks, ingest reported %d", n, res.Chunks)
	}
}

func Test_Engine_RequiresEmbedderAndStore(t *testing.T) {
	t.Parallel()
	if _, err := New(&Config{Store: index.New("")}); !errors.Is(err, rag.ErrInvalidConfig) {
		t.Errorf("missing embedder: want ErrInvalidConfig, got %v", err)
	}
	if _, err := New(&Config{Embedder: &keywordEmbedder{}}); !errors.Is(err, rag.ErrInvalidConfig) {
		t.Errorf("missing store: want ErrInvalidConfig, got %v", err)
	}
}
