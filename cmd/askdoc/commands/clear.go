package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc-go/internal/logging"
)

// NewClearCmd constructs the `askdoc clear` command, which removes every
// indexed chunk and catalog record.
func NewClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all indexed chunks and document records",
		Long: `Remove every chunk from the vector index and every record from the
document catalog. A corrupt index snapshot is also recovered by clearing.

Requires --yes to confirm.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("clear: refusing to clear without --yes")
			}

			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			deps, err := buildPipeline(ctx, log, false)
			if err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			defer deps.close()

			if err := deps.engine.Clear(ctx); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			if err := deps.engine.Persist(); err != nil {
				return fmt.Errorf("clear: failed to persist empty index: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Index and catalog cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing the index")

	return cmd
}
