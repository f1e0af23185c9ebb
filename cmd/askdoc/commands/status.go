package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc-go/internal/logging"
)

// NewStatusCmd constructs the `askdoc status` command, which reports the
// index size and the ingested documents.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index size and ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			deps, err := buildPipeline(ctx, log, false)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer deps.close()

			count, err := deps.engine.Count(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			docs, err := deps.engine.Documents(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed chunks: %d\n", count)
			if len(docs) == 0 {
				fmt.Fprintln(out, "No documents ingested.")
				return nil
			}

			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOCUMENT\tFORMAT\tCHUNKS\tINGESTED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
					d.DocumentID, d.Format, d.Chunks, d.IngestedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}
