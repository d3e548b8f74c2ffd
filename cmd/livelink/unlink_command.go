package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"livelink/internal/audit"
	"livelink/internal/config"
	"livelink/internal/immich"
	"livelink/internal/linker"
	"livelink/internal/runlog"
	"livelink/internal/workflow"
)

func newUnlinkCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun    bool
		assumeYes bool
		outputDir string
		linkedCSV string
	)

	cmd := &cobra.Command{
		Use:   "unlink",
		Short: "Revert links recorded in a previous run's candidate CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			dir, err := ctx.resolveOutputDir(outputDir)
			if err != nil {
				return err
			}
			csvPath, err := config.ExpandPath(linkedCSV)
			if err != nil {
				return err
			}

			runs, err := runlog.Open(dir)
			if err != nil {
				return err
			}
			defer runs.Close()

			out := cmd.OutOrStdout()
			client := immich.NewClient(cfg.API.URL, cfg.API.Key, nil, logger)
			recorder := audit.NewRecorder(dir, logger)

			runner := workflow.New(workflow.Deps{
				API:      client,
				Operator: linker.NewOperator(client, recorder, out, logger),
				Recorder: recorder,
				Runs:     runs,
				Confirm:  workflow.NewConfirmer(os.Stdin, out, assumeYes),
				Out:      out,
				Logger:   logger,
				UserName: cfg.UserInfo.Name,
				LockPath: filepath.Join(dir, "livelink.lock"),
			})

			err = runner.Unlink(cmd.Context(), workflow.UnlinkOptions{
				DryRun:   dryRun,
				InputCSV: csvPath,
			})
			if errors.Is(err, workflow.ErrNoCandidates) {
				fmt.Fprintf(out, "Nothing to do: %v\n", err)
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be unlinked without modifying any asset")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for audit CSV files (default from config)")
	cmd.Flags().StringVar(&linkedCSV, "linked-csv", "", "Candidate CSV written by a previous linking run")
	_ = cmd.MarkFlagRequired("linked-csv")

	return cmd
}
