package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"livelink/internal/runlog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var outputDir string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent reconciliation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := ctx.resolveOutputDir(outputDir)
			if err != nil {
				return err
			}

			runs, err := runlog.Open(dir)
			if err != nil {
				return err
			}
			defer runs.Close()

			entries, err := runs.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}
			fmt.Fprintln(out, renderHistory(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory holding the run-history database (default from config)")

	return cmd
}
