package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/askdoc/askdoc-go/internal/catalog"
	"github.com/askdoc/askdoc-go/internal/chunker"
	"github.com/askdoc/askdoc-go/internal/logging"
	"github.com/askdoc/askdoc-go/internal/rag"
)

// Ingest chunks a prose document, embeds the chunks with bounded concurrency,
// and inserts them into the vector store. The catalog record and the query
// cache are updated only after the store insert succeeds.
func (e *Engine) Ingest(ctx context.Context, docID string, format rag.Format, text string) (IngestResult, error) {
	chunks, err := chunker.Split(docID, text, e.chunkSize, e.chunkOverlap)
	if err != nil {
		return IngestResult{}, err
	}
	return e.ingestChunks(ctx, docID, format, chunks)
}

// IngestRows chunks a tabular document into row groups with repeated headers
// and row-range position hints, then embeds and indexes them like Ingest.
func (e *Engine) IngestRows(ctx context.Context, docID, header string, rows []string) (IngestResult, error) {
	chunks, err := chunker.SplitRows(docID, header, rows, e.rowsPerChunk, e.headerCadence)
	if err != nil {
		return IngestResult{}, err
	}
	return e.ingestChunks(ctx, docID, rag.FormatTabular, chunks)
}

// ingestChunks embeds and stores a prepared chunk slice.
func (e *Engine) ingestChunks(ctx context.Context, docID string, format rag.Format, chunks []rag.Chunk) (IngestResult, error) {
	res := IngestResult{DocumentID: docID, Format: format}
	if len(chunks) == 0 {
		logging.FromContext(ctx).Warn("engine: document produced no chunks",
			slog.String("document_id", docID))
		return res, nil
	}

	if err := e.embedChunks(ctx, chunks); err != nil {
		return IngestResult{}, err
	}
	if err := e.store.Insert(ctx, chunks); err != nil {
		return IngestResult{}, err
	}
	res.Chunks = len(chunks)

	if e.catalog != nil {
		rec := catalog.DocumentRecord{
			DocumentID: docID,
			Format:     string(format),
			Chunks:     len(chunks),
			IngestedAt: time.Now(),
		}
		if err := e.catalog.RecordDocument(ctx, rec); err != nil {
			// The chunks are already searchable; a catalog failure only
			// degrades bookkeeping.
			logging.FromContext(ctx).Warn("engine: catalog record failed",
				slog.String("document_id", docID), slog.Any("error", err))
		}
	}

	e.invalidate()
	return res, nil
}

// embedChunks fills in the Embedding field of every chunk, batching the texts
// and running up to embedConcurrency batches in parallel. Batches write into
// disjoint ranges of the shared slice, so no locking is needed; any batch
// error cancels the rest.
func (e *Engine) embedChunks(ctx context.Context, chunks []rag.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.embedConcurrency)

	for start := 0; start < len(chunks); start += e.embedBatchSize {
		end := min(start+e.embedBatchSize, len(chunks))
		batch := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vectors, err := e.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("%w: %v", rag.ErrEmbeddingUnavailable, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("%w: expected %d vectors, got %d",
					rag.ErrEmbeddingUnavailable, len(batch), len(vectors))
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}

	return g.Wait()
}
