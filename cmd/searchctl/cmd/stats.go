package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
)

func newStatsCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics for the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(cmd, global)
			if err != nil {
				return err
			}
			stats := ws.idx.Stats()
			out := cmd.OutOrStdout()
			if global.format == "json" {
				return writeJSON(out, stats)
			}

			fmt.Fprintf(out, "documents:  %d\n", stats.DocumentCount)
			fmt.Fprintf(out, "terms:      %d\n", stats.TermCount)
			fmt.Fprintf(out, "approx size: %d bytes\n", stats.ApproxBytes)
			fmt.Fprintln(out, "categories:")
			for _, cat := range index.Categories() {
				fmt.Fprintf(out, "  %-13s %d\n", cat, stats.CategoryCounts[cat])
			}
			return nil
		},
	}
}

func newExportCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the corpus as an index export blob",
		Long: `Print the corpus as an index export blob. The blob can be loaded
back with --corpus or posted to the service's import endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(cmd, global)
			if err != nil {
				return err
			}
			blob, err := ws.idx.Export()
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), blob+"\n")
			return err
		},
	}
}
