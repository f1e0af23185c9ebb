package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc-go/internal/logging"
)

// NewAskCmd constructs the `askdoc ask` command, which answers a single
// natural language question from the indexed documents.
func NewAskCmd() *cobra.Command {
	var topK int
	var contextOnly bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the indexed documents",
		Long: `Retrieve the most relevant passages for a question and generate a grounded
answer that cites its source documents.

With --context-only the generation step is skipped and the assembled,
provenance-tagged context is printed instead. This needs no model provider,
only the embedding backend.

Examples:
  askdoc ask "how many vacation days do employees get?"
  askdoc ask --top-k 10 "what is the expense approval process?"
  askdoc ask --context-only "who signs off on contracts?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			deps, err := buildPipeline(ctx, log, !contextOnly)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer deps.close()

			if contextOnly {
				qr, err := deps.engine.AnswerContext(ctx, question, topK)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				if qr.Context.Text == "" {
					fmt.Fprintln(out, "No relevant passages found.")
					return nil
				}
				fmt.Fprintln(out, qr.Context.Text)
				fmt.Fprintf(out, "\nconfidence: %.2f  sources: %s\n",
					qr.Confidence, strings.Join(qr.Context.SourceDocuments, ", "))
				return nil
			}

			res, err := deps.engine.Answer(ctx, question, topK, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Fprintln(out, res.Answer.Text)
			if len(res.Context.SourceDocuments) > 0 {
				fmt.Fprintf(out, "\nconfidence: %.2f  sources: %s\n",
					res.Confidence, strings.Join(res.Context.SourceDocuments, ", "))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of candidates to retrieve (default: RETRIEVAL_TOP_K or 5)")
	cmd.Flags().BoolVar(&contextOnly, "context-only", false, "Print the assembled context instead of generating an answer")

	return cmd
}
