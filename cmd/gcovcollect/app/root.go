package app

import (
	"github.com/spf13/cobra"
)

// NewGcovCollectCommand creates the root command for the gcovcollect tool.
func NewGcovCollectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gcovcollect",
		Short: "Aggregate gcov coverage data into per-file reports.",
		Long: `GcovCollect runs gcov over coverage data files, infers the working
directory the compiler was invoked from, and aggregates line and branch
execution counts across all reports for each source file.`,
	}

	cmd.AddCommand(NewCollectCommand())

	return cmd
}
