package commands

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc-go/internal/catalog"
	"github.com/askdoc/askdoc-go/internal/logging"
)

// NewEvalCmd constructs the `askdoc eval` command group for managing the
// evaluation question set stored in the catalog.
func NewEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Manage the evaluation question set",
		Long: `Manage the catalog's evaluation cases: question and expected-answer pairs
used to spot-check retrieval quality after re-ingesting documents.`,
	}

	cmd.AddCommand(newEvalAddCmd(), newEvalListCmd(), newEvalDeleteCmd())
	return cmd
}

// openCatalog opens the catalog at the configured path.
func openCatalog() (catalog.Catalog, error) {
	path := getEnvOrDefault("ASKDOC_CATALOG_DB", "")
	if path == "disabled" {
		return nil, fmt.Errorf("catalog is disabled (ASKDOC_CATALOG_DB=disabled)")
	}
	if path == "" {
		var err error
		path, err = catalog.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return catalog.Open(path)
}

func newEvalAddCmd() *cobra.Command {
	var expected string

	cmd := &cobra.Command{
		Use:   "add [question]",
		Short: "Add an evaluation case",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logging.WithLogger(cmd.Context(), logging.New())

			cat, err := openCatalog()
			if err != nil {
				return fmt.Errorf("eval add: %w", err)
			}
			defer cat.Close()

			id, err := cat.AddEvalCase(ctx, strings.Join(args, " "), expected)
			if err != nil {
				return fmt.Errorf("eval add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Evaluation case %d added.\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&expected, "expected", "e", "", "Expected answer for the question")
	return cmd
}

func newEvalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List evaluation cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logging.WithLogger(cmd.Context(), logging.New())

			cat, err := openCatalog()
			if err != nil {
				return fmt.Errorf("eval list: %w", err)
			}
			defer cat.Close()

			cases, err := cat.EvalCases(ctx)
			if err != nil {
				return fmt.Errorf("eval list: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(cases) == 0 {
				fmt.Fprintln(out, "No evaluation cases.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tQUESTION\tEXPECTED")
			for _, ec := range cases {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", ec.ID, ec.Question, ec.ExpectedAnswer)
			}
			return tw.Flush()
		},
	}
}

func newEvalDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an evaluation case by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logging.WithLogger(cmd.Context(), logging.New())

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("eval delete: invalid id %q", args[0])
			}

			cat, err := openCatalog()
			if err != nil {
				return fmt.Errorf("eval delete: %w", err)
			}
			defer cat.Close()

			if err := cat.DeleteEvalCase(ctx, id); err != nil {
				return fmt.Errorf("eval delete: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Evaluation case deleted.")
			return nil
		},
	}
}
