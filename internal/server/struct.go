package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/askdoc/askdoc-go/internal/catalog"
	"github.com/askdoc/askdoc-go/internal/engine"
	"github.com/askdoc/askdoc-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metric registrations.
	// If nil, prometheus.DefaultRegisterer is used.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. If nil, prometheus.DefaultGatherer
	// is used.
	MetricsGatherer prometheus.Gatherer
}

// pipeline is the interface the handlers call into. *engine.Engine satisfies
// it in production; tests inject a fake.
type pipeline interface {
	Ingest(ctx context.Context, docID string, format rag.Format, text string) (engine.IngestResult, error)
	IngestRows(ctx context.Context, docID, header string, rows []string) (engine.IngestResult, error)
	AnswerContext(ctx context.Context, question string, topK int) (engine.QueryResult, error)
	Answer(ctx context.Context, question string, topK int, history []*schema.Message) (engine.AskResult, error)
	Count(ctx context.Context) (int, error)
	Documents(ctx context.Context) ([]catalog.DocumentRecord, error)
	Clear(ctx context.Context) error
	Persist() error
}

// Server is the HTTP server that exposes the retrieval pipeline.
type Server struct {
	// pipeline is the engine behind every handler; overridden by a fake in tests.
	pipeline pipeline
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// ingestRequest is the JSON body for POST /api/ingest. Either Text (prose) or
// Header+Rows (tabular) must be supplied, not both.
type ingestRequest struct {
	// DocumentID is the stable identifier to index the document under.
	DocumentID string `json:"documentId"`
	// Format classifies the source: text, pdf, docx, or tabular.
	// Defaults to "text" for prose ingestion.
	Format string `json:"format,omitempty"`
	// Text is the full prose content to chunk and index.
	Text string `json:"text,omitempty"`
	// Header is the column header line for tabular ingestion.
	Header string `json:"header,omitempty"`
	// Rows are the data rows for tabular ingestion.
	Rows []string `json:"rows,omitempty"`
}

// ingestResponse is the JSON response for POST /api/ingest.
type ingestResponse struct {
	// DocumentID echoes the ingested document's identifier.
	DocumentID string `json:"documentId"`
	// Format is the format recorded for the document.
	Format string `json:"format"`
	// Chunks is the number of chunks indexed.
	Chunks int `json:"chunks"`
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// TopK is the number of candidates to retrieve. Zero uses the server default.
	TopK int `json:"topK,omitempty"`
	// Generate requests a model-generated answer in addition to the
	// assembled context. Requires a configured generation model.
	Generate bool `json:"generate,omitempty"`
}

// querySource describes one surviving retrieval candidate in a query response.
type querySource struct {
	// Key is the chunk's unique identifier.
	Key string `json:"key"`
	// DocumentID identifies the source document.
	DocumentID string `json:"documentId"`
	// PositionHint locates the chunk in the source, if known.
	PositionHint string `json:"positionHint,omitempty"`
	// Similarity is the cosine similarity to the query embedding.
	Similarity float64 `json:"similarity"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Answer is the generated answer. Empty unless Generate was requested.
	Answer string `json:"answer,omitempty"`
	// Context is the assembled, provenance-tagged context.
	Context string `json:"context"`
	// Confidence is the aggregate retrieval confidence in [0, 1].
	Confidence float64 `json:"confidence"`
	// Sources lists the distinct contributing document IDs, first seen first.
	Sources []string `json:"sources"`
	// Candidates are the reranked survivors, best first.
	Candidates []querySource `json:"candidates"`
	// Truncated is true when the context budget cut at least one chunk.
	Truncated bool `json:"truncated"`
	// CacheHit is true when the retrieval result came from the query cache.
	CacheHit bool `json:"cacheHit"`
}

// documentInfo is one catalog record in a stats response.
type documentInfo struct {
	// DocumentID is the document's identifier.
	DocumentID string `json:"documentId"`
	// Format is the recorded source format.
	Format string `json:"format"`
	// Chunks is the number of chunks the document produced.
	Chunks int `json:"chunks"`
	// IngestedAt is when the document was last ingested.
	IngestedAt time.Time `json:"ingestedAt"`
}

// statsResponse is the JSON response for GET /api/stats.
type statsResponse struct {
	// Chunks is the total number of indexed chunks.
	Chunks int `json:"chunks"`
	// Documents are the catalog records, newest first.
	Documents []documentInfo `json:"documents"`
}
