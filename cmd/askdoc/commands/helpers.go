package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/askdoc/askdoc-go/internal/catalog"
	"github.com/askdoc/askdoc-go/internal/config"
	"github.com/askdoc/askdoc-go/internal/embedder"
	"github.com/askdoc/askdoc-go/internal/engine"
	"github.com/askdoc/askdoc-go/internal/generator"
	"github.com/askdoc/askdoc-go/internal/index"
	"github.com/askdoc/askdoc-go/internal/provider"
	"github.com/askdoc/askdoc-go/internal/rag"
)

// pipelineDeps bundles the constructed engine with the handles individual
// commands need for probing and shutdown.
type pipelineDeps struct {
	// engine is the fully wired retrieval pipeline.
	engine *engine.Engine
	// embedder is the embedding backend, exposed for readiness probes.
	embedder rag.Embedder
	// chatModel is the generation model, nil when generation was not requested.
	chatModel model.ToolCallingChatModel
	// qdrant is the Qdrant store, nil when the in-memory backend is active.
	qdrant *rag.QdrantStore
	// close releases the engine's store and catalog.
	close func()
}

// buildPipeline constructs the engine from the environment: embedding
// backend, vector store (in-memory snapshot or Qdrant), catalog, synonyms,
// and optionally the generation model. The in-memory index is loaded from
// its snapshot before the engine is returned.
func buildPipeline(ctx context.Context, log *slog.Logger, withGenerator bool) (*pipelineDeps, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	deps := &pipelineDeps{embedder: emb}

	var store rag.VectorStore
	var persister rag.Persister

	backend := getEnvOrDefault("ASKDOC_INDEX_BACKEND", "memory")
	switch backend {
	case "qdrant":
		embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "askdoc-chunks"),
			VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		deps.qdrant = qs
		store = qs
	case "memory":
		path := os.Getenv("ASKDOC_INDEX_PATH")
		if path == "" {
			path, err = defaultIndexPath()
			if err != nil {
				return nil, err
			}
		}
		idx := index.New(path)
		store = idx
		persister = idx
	default:
		return nil, fmt.Errorf("unknown index backend %q (use memory or qdrant)", backend)
	}

	var cat catalog.Catalog
	dbPath := os.Getenv("ASKDOC_CATALOG_DB")
	if dbPath != "disabled" {
		if dbPath == "" {
			dbPath, err = catalog.DefaultDBPath()
			if err != nil {
				log.Warn("catalog: could not resolve default DB path, disabling", slog.Any("error", err))
				dbPath = ""
			}
		}
		if dbPath != "" {
			c, catErr := catalog.Open(dbPath)
			if catErr != nil {
				log.Warn("catalog: failed to open, disabling", slog.Any("error", catErr))
			} else {
				cat = c
			}
		}
	} else {
		log.Info("catalog: disabled via ASKDOC_CATALOG_DB=disabled")
	}

	synonyms, err := config.LoadSynonyms(os.Getenv("SYNONYMS_FILE"))
	if err != nil {
		log.Warn("synonyms: failed to load, continuing without expansion", slog.Any("error", err))
		synonyms = nil
	}

	var gen *generator.Generator
	if withGenerator {
		chatModel, mErr := provider.NewFromEnv(ctx)
		if mErr != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialise model provider: %w", mErr)
		}
		deps.chatModel = chatModel
		gen, err = generator.New(&generator.Config{ChatModel: chatModel})
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	eng, err := engine.New(&engine.Config{
		Embedder:       emb,
		Store:          store,
		Persister:      persister,
		Generator:      gen,
		Catalog:        cat,
		Synonyms:       synonyms,
		ChunkSize:      getEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 0),
		RowsPerChunk:   getEnvInt("CHUNK_ROWS_PER_CHUNK", 0),
		HeaderCadence:  getEnvInt("CHUNK_HEADER_CADENCE", 0),
		TopK:           getEnvInt("RETRIEVAL_TOP_K", 0),
		MinRelevance:   getEnvFloat("MIN_RELEVANCE", 0),
		MaxContextSize: getEnvInt("MAX_CONTEXT_SIZE", 0),
		CacheSize:      getEnvInt("QUERY_CACHE_SIZE", 0),
		CacheTTL:       time.Duration(getEnvInt("QUERY_CACHE_TTL", 0)) * time.Second,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	deps.engine = eng
	deps.close = func() { _ = eng.Close() }

	// Restore the in-memory index snapshot. Missing snapshots are a normal
	// first run. A corrupt snapshot marks the index as refusing searches
	// until cleared, so the engine still starts and `askdoc clear` can
	// recover it.
	if persister != nil {
		if err := eng.Load(); err != nil {
			if !errors.Is(err, rag.ErrCorruptIndex) {
				deps.close()
				return nil, fmt.Errorf("failed to load index snapshot: %w", err)
			}
			log.Warn("index snapshot is corrupt, run `askdoc clear --yes` to rebuild",
				slog.Any("error", err))
		}
	}

	return deps, nil
}

// defaultIndexPath returns ~/.askdoc/index.json.
func defaultIndexPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	return filepath.Join(home, ".askdoc", "index.json"), nil
}

// getEnvOrDefault returns the environment variable value or a fallback.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the environment variable parsed as int, or the fallback
// if unset or unparsable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the environment variable parsed as float64, or the
// fallback if unset or unparsable.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
