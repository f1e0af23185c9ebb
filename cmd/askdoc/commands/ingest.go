package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc-go/internal/logging"
	"github.com/askdoc/askdoc-go/internal/rag"
)

// NewIngestCmd constructs the `askdoc ingest` command, which chunks, embeds,
// and indexes local documents.
func NewIngestCmd() *cobra.Command {
	var docID string
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into the vector index",
		Long: `Chunk, embed, and index one or more documents.

The document format is detected from the file extension: .txt and .md are
ingested as prose, .csv as tabular data (first line is the header, rows are
grouped with the header repeated at a fixed cadence). Files extracted from
PDF or Word sources can be tagged with --format pdf or --format docx so the
catalog records their origin; the file content itself must already be plain
text.

The document ID defaults to the file name without its extension.
Re-ingesting under the same ID replaces the previous version.

Required environment variables depend on the embedding backend:
  MODEL_PROVIDER / EMBEDDING_PROVIDER   ollama, openai, azure, gemini
  EMBEDDING_*                           provider-specific overrides
  ASKDOC_INDEX_BACKEND                  memory (default) or qdrant

Examples:
  askdoc ingest handbook.md
  askdoc ingest --id rates vacation_rates.csv
  askdoc ingest --format pdf contract-extracted.txt
  askdoc ingest docs/*.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if docID != "" && len(args) > 1 {
				return fmt.Errorf("ingest: --id is only valid with a single file")
			}

			deps, err := buildPipeline(ctx, log, false)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer deps.close()

			total := 0
			for _, path := range args {
				id := docID
				if id == "" {
					base := filepath.Base(path)
					id = strings.TrimSuffix(base, filepath.Ext(base))
				}

				res, err := ingestFile(ctx, deps, id, path, formatFlag)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}
				total += res

				log.Info("document ingested",
					slog.String("document_id", id),
					slog.String("path", path),
					slog.Int("chunks", res),
				)
			}

			if err := deps.engine.Persist(); err != nil {
				return fmt.Errorf("ingest: failed to persist index: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d document(s), %d chunk(s).\n", len(args), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "id", "", "Document ID override (single file only; default: file name without extension)")
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Format override: text, pdf, docx, tabular (default: by extension)")

	return cmd
}

// ingestFile reads one file and routes it to the prose or tabular ingestion
// path. Returns the number of chunks indexed.
func ingestFile(ctx context.Context, deps *pipelineDeps, id, path, formatFlag string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	format, tabular, err := resolveFormat(path, formatFlag)
	if err != nil {
		return 0, err
	}

	if tabular {
		header, rows := splitCSV(string(data))
		if header == "" {
			return 0, fmt.Errorf("empty tabular file")
		}
		res, err := deps.engine.IngestRows(ctx, id, header, rows)
		if err != nil {
			return 0, err
		}
		return res.Chunks, nil
	}

	res, err := deps.engine.Ingest(ctx, id, format, string(data))
	if err != nil {
		return 0, err
	}
	return res.Chunks, nil
}

// resolveFormat maps the --format flag or the file extension onto a document
// format, and reports whether the tabular ingestion path applies.
func resolveFormat(path, formatFlag string) (rag.Format, bool, error) {
	if formatFlag != "" {
		switch rag.Format(formatFlag) {
		case rag.FormatText, rag.FormatPDF, rag.FormatDocx:
			return rag.Format(formatFlag), false, nil
		case rag.FormatTabular:
			return rag.FormatTabular, true, nil
		default:
			return "", false, fmt.Errorf("unknown format %q (use text, pdf, docx, or tabular)", formatFlag)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return rag.FormatText, false, nil
	case ".csv":
		return rag.FormatTabular, true, nil
	default:
		return "", false, fmt.Errorf("unsupported extension %q (use --format to override)", filepath.Ext(path))
	}
}

// splitCSV separates a raw CSV body into its header line and data rows,
// dropping blank lines.
func splitCSV(body string) (string, []string) {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	var header string
	var rows []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if header == "" {
			header = line
			continue
		}
		rows = append(rows, line)
	}
	return header, rows
}
