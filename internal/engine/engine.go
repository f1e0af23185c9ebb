// Package engine wires the askdoc pipeline together: chunking, embedding,
// vector search, reranking, context assembly, and the optional generation
// step. It is the single entry point used by both the CLI commands and the
// HTTP server.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/askdoc/askdoc-go/internal/catalog"
	"github.com/askdoc/askdoc-go/internal/generator"
	"github.com/askdoc/askdoc-go/internal/rag"
)

// Pipeline defaults applied when Config leaves the knobs at zero.
const (
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultTopK           = 5
	DefaultMaxContextSize = 4000
)

// Config holds the dependencies and tuning knobs for constructing an Engine.
type Config struct {
	// Embedder converts text to vectors. Required.
	Embedder rag.Embedder
	// Store is the vector store backend. Required.
	Store rag.VectorStore
	// Persister saves and restores the store when the backend supports
	// snapshots (the in-memory index does, Qdrant persists itself). Optional.
	Persister rag.Persister
	// Generator produces answers from assembled contexts. Optional; without
	// it Answer returns an error and AnswerContext still works.
	Generator *generator.Generator
	// Catalog records ingestion bookkeeping. Optional.
	Catalog catalog.Catalog
	// Synonyms is the query-expansion map handed to the retriever.
	Synonyms map[string][]string

	// ChunkSize is the maximum chunk length in characters (default 1000).
	ChunkSize int
	// ChunkOverlap is the overlap between consecutive chunks (default 200).
	ChunkOverlap int
	// RowsPerChunk is the row-group size for tabular ingestion.
	RowsPerChunk int
	// HeaderCadence repeats the header every N rows in tabular chunks.
	HeaderCadence int

	// TopK is the number of candidates fetched per query (default 5).
	TopK int
	// MinRelevance is the rerank threshold (default rag.DefaultMinRelevance).
	MinRelevance float64
	// MaxContextSize is the assembled context budget in characters (default 4000).
	MaxContextSize int

	// CacheSize is the query cache capacity (default 128, negative disables).
	CacheSize int
	// CacheTTL is the query cache entry lifetime (default 5 minutes).
	CacheTTL time.Duration

	// EmbedConcurrency bounds parallel embedding calls during ingestion
	// (default 4).
	EmbedConcurrency int
	// EmbedBatchSize is the number of chunks per embedding call (default 16).
	EmbedBatchSize int
}

// QueryResult is the outcome of the retrieval half of the pipeline.
type QueryResult struct {
	// Candidates are the reranked survivors, best first.
	Candidates []rag.Candidate
	// Confidence is the aggregate retrieval confidence in [0, 1].
	Confidence float64
	// Context is the assembled, provenance-tagged context.
	Context rag.AssembledContext
	// CacheHit is true when the result came from the query cache.
	CacheHit bool
}

// AskResult extends QueryResult with the generated answer.
type AskResult struct {
	QueryResult
	// Answer is the generation step output.
	Answer generator.Answer
}

// IngestResult summarises one document ingestion.
type IngestResult struct {
	// DocumentID is the ingested document's identifier.
	DocumentID string
	// Format is the document format recorded in the catalog.
	Format rag.Format
	// Chunks is the number of chunks indexed.
	Chunks int
}

// Engine runs the askdoc pipeline. Safe for concurrent use; writer-class
// operations (Ingest, Clear, Load) invalidate the query cache.
type Engine struct {
	embedder  rag.Embedder
	store     rag.VectorStore
	persister rag.Persister
	retriever rag.Retriever
	generator *generator.Generator
	catalog   catalog.Catalog
	cache     *queryCache

	chunkSize      int
	chunkOverlap   int
	rowsPerChunk   int
	headerCadence  int
	topK           int
	minRelevance   float64
	maxContextSize int

	embedConcurrency int
	embedBatchSize   int
}

// New constructs an Engine from the provided Config.
func New(cfg *Config) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("%w: engine requires an embedder", rag.ErrInvalidConfig)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: engine requires a vector store", rag.ErrInvalidConfig)
	}

	retriever, err := rag.NewRetriever(cfg.Embedder, cfg.Store, cfg.Synonyms)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		embedder:         cfg.Embedder,
		store:            cfg.Store,
		persister:        cfg.Persister,
		retriever:        retriever,
		generator:        cfg.Generator,
		catalog:          cfg.Catalog,
		chunkSize:        cfg.ChunkSize,
		chunkOverlap:     cfg.ChunkOverlap,
		rowsPerChunk:     cfg.RowsPerChunk,
		headerCadence:    cfg.HeaderCadence,
		topK:             cfg.TopK,
		minRelevance:     cfg.MinRelevance,
		maxContextSize:   cfg.MaxContextSize,
		embedConcurrency: cfg.EmbedConcurrency,
		embedBatchSize:   cfg.EmbedBatchSize,
	}
	if e.chunkSize <= 0 {
		e.chunkSize = DefaultChunkSize
	}
	if e.chunkOverlap <= 0 {
		e.chunkOverlap = DefaultChunkOverlap
	}
	if e.topK <= 0 {
		e.topK = DefaultTopK
	}
	if e.minRelevance == 0 {
		e.minRelevance = rag.DefaultMinRelevance
	}
	if e.maxContextSize <= 0 {
		e.maxContextSize = DefaultMaxContextSize
	}
	if e.embedConcurrency <= 0 {
		e.embedConcurrency = 4
	}
	if e.embedBatchSize <= 0 {
		e.embedBatchSize = 16
	}

	if cfg.CacheSize >= 0 {
		size := cfg.CacheSize
		if size == 0 {
			size = defaultCacheSize
		}
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = defaultCacheTTL
		}
		cache, err := newQueryCache(size, ttl)
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}

	return e, nil
}

// AnswerContext runs the retrieval half of the pipeline: expand, embed,
// search, rerank, assemble. topK <= 0 uses the configured default. Results
// are served from the query cache when the same question was asked recently
// and no writer-class operation has intervened.
func (e *Engine) AnswerContext(ctx context.Context, question string, topK int) (QueryResult, error) {
	if topK <= 0 {
		topK = e.topK
	}

	key := cacheKey(question, topK, e.minRelevance, e.maxContextSize)
	if e.cache != nil {
		if res, ok := e.cache.get(key); ok {
			res.CacheHit = true
			return res, nil
		}
	}

	candidates, err := e.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return QueryResult{}, err
	}

	survivors, confidence := rag.Rerank(candidates, e.minRelevance)
	assembled, err := rag.Assemble(survivors, e.maxContextSize)
	if err != nil {
		return QueryResult{}, err
	}

	res := QueryResult{
		Candidates: survivors,
		Confidence: confidence,
		Context:    assembled,
	}
	if e.cache != nil {
		e.cache.put(key, res)
	}
	return res, nil
}

// Answer runs the full pipeline: retrieval followed by generation. history
// carries optional prior conversation turns for the generation step.
func (e *Engine) Answer(ctx context.Context, question string, topK int, history []*schema.Message) (AskResult, error) {
	if e.generator == nil {
		return AskResult{}, fmt.Errorf("%w: no generation model configured", rag.ErrInvalidConfig)
	}

	qr, err := e.AnswerContext(ctx, question, topK)
	if err != nil {
		return AskResult{}, err
	}

	ans, err := e.generator.Generate(ctx, question, qr.Context, history)
	if err != nil {
		return AskResult{}, err
	}
	return AskResult{QueryResult: qr, Answer: ans}, nil
}

// Count returns the number of indexed chunks.
func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// Documents returns the catalog records, or nil when no catalog is configured.
func (e *Engine) Documents(ctx context.Context) ([]catalog.DocumentRecord, error) {
	if e.catalog == nil {
		return nil, nil
	}
	return e.catalog.Documents(ctx)
}

// Clear removes all indexed chunks and catalog records and empties the query
// cache. A corrupt in-memory index is recovered by Clear.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	if e.catalog != nil {
		if err := e.catalog.ClearDocuments(ctx); err != nil {
			return err
		}
	}
	e.invalidate()
	return nil
}

// Persist snapshots the vector store when the backend supports it.
func (e *Engine) Persist() error {
	if e.persister == nil {
		return nil
	}
	return e.persister.Persist()
}

// Load restores the vector store snapshot when the backend supports it, and
// empties the query cache since the index contents changed.
func (e *Engine) Load() error {
	if e.persister == nil {
		return nil
	}
	if err := e.persister.Load(); err != nil {
		return err
	}
	e.invalidate()
	return nil
}

// Close releases the store and catalog.
func (e *Engine) Close() error {
	if e.catalog != nil {
		if err := e.catalog.Close(); err != nil {
			return err
		}
	}
	return e.store.Close()
}

// invalidate empties the query cache after a writer-class operation.
func (e *Engine) invalidate() {
	if e.cache != nil {
		e.cache.purge()
	}
}
