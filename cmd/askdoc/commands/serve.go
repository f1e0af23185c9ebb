package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc-go/internal/logging"
	"github.com/askdoc/askdoc-go/internal/server"
	"github.com/askdoc/askdoc-go/internal/tracing"
)

// NewServeCmd constructs the `askdoc serve` command, which starts the HTTP
// server exposing the retrieval pipeline as a REST API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var noGenerate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the askdoc HTTP server",
		Long: `Start the askdoc HTTP server on localhost.

The server exposes ingest, query, clear, persist, and stats endpoints plus
liveness, readiness, and Prometheus metrics. Set ASKDOC_API_KEY to require
Bearer token authentication on the API routes.

With --no-generate the server starts without a model provider and serves
retrieval-only queries; requests with "generate": true are then rejected.

Examples:
  askdoc serve
  askdoc serve --port 9090
  MODEL_PROVIDER=openai askdoc serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			deps, err := buildPipeline(ctx, log, !noGenerate)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer deps.close()

			embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
			pingers := []server.Pinger{
				server.NewEmbedderPinger(deps.embedder, embBackend),
			}
			if deps.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(deps.qdrant.Client()))
			}
			if deps.chatModel != nil {
				pingers = append(pingers, server.NewModelPinger(deps.chatModel, getEnvOrDefault("MODEL_PROVIDER", "ollama")))
			}

			srv, err := server.New(deps.engine, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("ASKDOC_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			err = srv.Start(ctx)

			// Snapshot the in-memory index on shutdown so restarts resume
			// from the same state.
			if pErr := deps.engine.Persist(); pErr != nil {
				log.Warn("serve: failed to persist index on shutdown", slog.Any("error", pErr))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().BoolVar(&noGenerate, "no-generate", false, "Serve retrieval-only queries without a model provider")

	return cmd
}
