// Package catalog provides a SQLite-backed bookkeeping store for the askdoc
// pipeline: which documents were ingested, with what chunking outcome, plus a
// small table of evaluation question/answer cases used for retrieval quality
// checks. The catalog is advisory metadata; the vector index remains the
// source of truth for searchable content.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// DocumentRecord describes one ingested document.
type DocumentRecord struct {
	// DocumentID is the caller-supplied document identifier.
	DocumentID string
	// Format is the detected document format (text, pdf, docx, tabular).
	Format string
	// Chunks is the number of chunks produced at ingestion.
	Chunks int
	// IngestedAt is when the document entered the index.
	IngestedAt time.Time
}

// EvalCase is one retrieval-quality evaluation case.
type EvalCase struct {
	// ID is the database row id.
	ID int64
	// Question is the query posed to the pipeline.
	Question string
	// ExpectedAnswer is the reference answer used for manual comparison.
	ExpectedAnswer string
	// CreatedAt is when the case was recorded.
	CreatedAt time.Time
}

// Catalog persists document and evaluation-case records. Implementations must
// be safe for concurrent use.
type Catalog interface {
	// RecordDocument upserts the record for an ingested document.
	RecordDocument(ctx context.Context, rec DocumentRecord) error
	// Documents returns all document records ordered by ingestion time.
	Documents(ctx context.Context) ([]DocumentRecord, error)
	// DeleteDocument removes the record for a document id.
	DeleteDocument(ctx context.Context, documentID string) error
	// ClearDocuments removes all document records.
	ClearDocuments(ctx context.Context) error
	// AddEvalCase records an evaluation case and returns its id.
	AddEvalCase(ctx context.Context, question, expectedAnswer string) (int64, error)
	// EvalCases returns all evaluation cases ordered by creation time.
	EvalCases(ctx context.Context) ([]EvalCase, error)
	// DeleteEvalCase removes an evaluation case by id.
	DeleteEvalCase(ctx context.Context, id int64) error
	// Close releases any resources held by the catalog.
	Close() error
}

// SQLiteCatalog is a Catalog backed by a local SQLite database.
type SQLiteCatalog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the catalog database.
// It resolves to ~/.askdoc/catalog.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("catalog: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".askdoc")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("catalog: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "catalog.db"), nil
}

// Open opens (or creates) a SQLiteCatalog at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteCatalog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	c := &SQLiteCatalog{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// migrate creates the schema if it does not already exist.
func (c *SQLiteCatalog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    document_id  TEXT    PRIMARY KEY,
    format       TEXT    NOT NULL,
    chunks       INTEGER NOT NULL,
    ingested_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS eval_cases (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    question         TEXT    NOT NULL,
    expected_answer  TEXT    NOT NULL,
    created_at       INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_documents_ingested
    ON documents (ingested_at);
`
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// RecordDocument upserts the record for an ingested document. Re-ingesting a
// document replaces its format, chunk count, and timestamp.
func (c *SQLiteCatalog) RecordDocument(ctx context.Context, rec DocumentRecord) error {
	const q = `
INSERT INTO documents (document_id, format, chunks, ingested_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
    format = excluded.format,
    chunks = excluded.chunks,
    ingested_at = excluded.ingested_at`
	at := rec.IngestedAt
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := c.db.ExecContext(ctx, q, rec.DocumentID, rec.Format, rec.Chunks, at.Unix()); err != nil {
		return fmt.Errorf("catalog: record document: %w", err)
	}
	return nil
}

// Documents returns all document records ordered oldest-first.
func (c *SQLiteCatalog) Documents(ctx context.Context) ([]DocumentRecord, error) {
	const q = `
SELECT document_id, format, chunks, ingested_at
FROM   documents
ORDER  BY ingested_at ASC, document_id ASC`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: documents: %w", err)
	}
	defer rows.Close()

	var recs []DocumentRecord
	for rows.Next() {
		var r DocumentRecord
		var ts int64
		if err := rows.Scan(&r.DocumentID, &r.Format, &r.Chunks, &ts); err != nil {
			return nil, fmt.Errorf("catalog: documents scan: %w", err)
		}
		r.IngestedAt = time.Unix(ts, 0)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: documents rows: %w", err)
	}
	return recs, nil
}

// DeleteDocument removes the record for a document id. Deleting an unknown id
// is not an error.
func (c *SQLiteCatalog) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("catalog: delete document: %w", err)
	}
	return nil
}

// ClearDocuments removes all document records. Called alongside index Clear so
// the catalog never describes documents the index no longer holds.
func (c *SQLiteCatalog) ClearDocuments(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("catalog: clear documents: %w", err)
	}
	return nil
}

// AddEvalCase records an evaluation case and returns its row id.
func (c *SQLiteCatalog) AddEvalCase(ctx context.Context, question, expectedAnswer string) (int64, error) {
	const q = `INSERT INTO eval_cases (question, expected_answer, created_at) VALUES (?, ?, ?)`
	res, err := c.db.ExecContext(ctx, q, question, expectedAnswer, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("catalog: add eval case: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: add eval case id: %w", err)
	}
	return id, nil
}

// EvalCases returns all evaluation cases ordered oldest-first.
func (c *SQLiteCatalog) EvalCases(ctx context.Context) ([]EvalCase, error) {
	const q = `
SELECT id, question, expected_answer, created_at
FROM   eval_cases
ORDER  BY created_at ASC, id ASC`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: eval cases: %w", err)
	}
	defer rows.Close()

	var cases []EvalCase
	for rows.Next() {
		var ec EvalCase
		var ts int64
		if err := rows.Scan(&ec.ID, &ec.Question, &ec.ExpectedAnswer, &ts); err != nil {
			return nil, fmt.Errorf("catalog: eval cases scan: %w", err)
		}
		ec.CreatedAt = time.Unix(ts, 0)
		cases = append(cases, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: eval cases rows: %w", err)
	}
	return cases, nil
}

// DeleteEvalCase removes an evaluation case by id.
func (c *SQLiteCatalog) DeleteEvalCase(ctx context.Context, id int64) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM eval_cases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("catalog: delete eval case: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (c *SQLiteCatalog) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("catalog: close: %w", err)
	}
	return nil
}
