// Package server implements the HTTP server that exposes the askdoc
// retrieval pipeline via a REST API, plus liveness, readiness, and
// Prometheus metrics endpoints.
// The server is started by the `askdoc serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdoc/askdoc-go/internal/engine"
	"github.com/askdoc/askdoc-go/internal/logging"
	"github.com/askdoc/askdoc-go/internal/rag"
)

// New constructs a Server from the provided engine and config.
func New(eng *engine.Engine, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full retrieval plus generation round trip.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	registry := cfg.MetricsRegistry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	gatherer := cfg.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		pipeline: eng,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(registry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: no API key configured, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	limited := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, rl.middleware(authMiddleware(cfg.APIKey, h)))
	}
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, authMiddleware(cfg.APIKey, h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ingest", limited("ingest", s.handleIngest))
	mux.Handle("POST /api/query", limited("query", s.handleQuery))
	mux.Handle("POST /api/clear", protected("clear", s.handleClear))
	mux.Handle("POST /api/persist", protected("persist", s.handlePersist))
	mux.Handle("GET /api/stats", protected("stats", s.handleStats))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleIngest handles POST /api/ingest. Prose bodies carry Text; tabular
// bodies carry Header and Rows.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		http.Error(w, "documentId is required", http.StatusBadRequest)
		return
	}
	tabular := len(req.Rows) > 0
	if !tabular && req.Text == "" {
		http.Error(w, "text or rows is required", http.StatusBadRequest)
		return
	}
	if tabular && req.Text != "" {
		http.Error(w, "text and rows are mutually exclusive", http.StatusBadRequest)
		return
	}

	var (
		res engine.IngestResult
		err error
	)
	if tabular {
		res, err = s.pipeline.IngestRows(r.Context(), req.DocumentID, req.Header, req.Rows)
	} else {
		format := rag.Format(req.Format)
		if format == "" {
			format = rag.FormatText
		}
		res, err = s.pipeline.Ingest(r.Context(), req.DocumentID, format, req.Text)
	}
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}

	s.metrics.observeIngest(res.Chunks)
	s.refreshIndexGauge(r.Context())

	writeJSON(w, http.StatusOK, ingestResponse{
		DocumentID: res.DocumentID,
		Format:     string(res.Format),
		Chunks:     res.Chunks,
	})
}

// handleQuery handles POST /api/query. Without Generate it returns the
// retrieval result only; with Generate it also runs the generation step.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	start := time.Now()

	var (
		qr     engine.QueryResult
		answer string
		err    error
	)
	if req.Generate {
		var ar engine.AskResult
		ar, err = s.pipeline.Answer(r.Context(), req.Question, req.TopK, nil)
		qr, answer = ar.QueryResult, ar.Answer.Text
	} else {
		qr, err = s.pipeline.AnswerContext(r.Context(), req.Question, req.TopK)
	}
	elapsed := time.Since(start).Seconds()

	if err != nil {
		s.metrics.observeQuery(outcomeError, elapsed)
		s.writePipelineError(w, r, err)
		return
	}

	outcome := outcomeOK
	if len(qr.Candidates) == 0 {
		outcome = outcomeEmpty
	}
	s.metrics.observeQuery(outcome, elapsed)
	s.metrics.observeRetrieval(qr.Confidence, qr.Context.Truncated)

	resp := queryResponse{
		Answer:     answer,
		Context:    qr.Context.Text,
		Confidence: qr.Confidence,
		Sources:    qr.Context.SourceDocuments,
		Candidates: make([]querySource, 0, len(qr.Candidates)),
		Truncated:  qr.Context.Truncated,
		CacheHit:   qr.CacheHit,
	}
	for _, c := range qr.Candidates {
		resp.Candidates = append(resp.Candidates, querySource{
			Key:          c.Key,
			DocumentID:   c.DocumentID,
			PositionHint: c.PositionHint,
			Similarity:   c.Similarity,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClear handles POST /api/clear. It removes every indexed chunk and
// catalog record.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Clear(r.Context()); err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	s.metrics.setIndexEntries(0)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handlePersist handles POST /api/persist. It snapshots the vector store
// when the backend supports snapshots, and is a no-op otherwise.
func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Persist(); err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "persisted"})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.pipeline.Count(r.Context())
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	docs, err := s.pipeline.Documents(r.Context())
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}

	resp := statsResponse{Chunks: count, Documents: make([]documentInfo, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, documentInfo{
			DocumentID: d.DocumentID,
			Format:     d.Format,
			Chunks:     d.Chunks,
			IngestedAt: d.IngestedAt,
		})
	}
	s.metrics.setIndexEntries(count)
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writePipelineError maps pipeline errors onto HTTP status codes. Validation
// failures are the client's fault; unavailable or corrupt dependencies are
// service errors that readiness checks will also surface.
func (s *Server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rag.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, rag.ErrEmbeddingUnavailable),
		errors.Is(err, rag.ErrCorruptIndex):
		status = http.StatusServiceUnavailable
	case errors.Is(err, rag.ErrDimensionMismatch):
		status = http.StatusConflict
	}

	log.Error("pipeline error",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Any("error", err),
	)
	http.Error(w, err.Error(), status)
}

// refreshIndexGauge updates the index size gauge, tolerating count failures.
func (s *Server) refreshIndexGauge(ctx context.Context) {
	n, err := s.pipeline.Count(ctx)
	if err != nil {
		return
	}
	s.metrics.setIndexEntries(n)
}

// instrument wraps a handler with per-endpoint request counting and latency
// observation under the given logical name.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		if s.metrics != nil {
			s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
			s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		}
	})
}

// writeJSON encodes v as the JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
