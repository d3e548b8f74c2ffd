package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"livelink/internal/assetdb"
	"livelink/internal/audit"
	"livelink/internal/immich"
	"livelink/internal/linker"
	"livelink/internal/runlog"
	"livelink/internal/workflow"
)

func newLinkCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun           bool
		testRun          bool
		assumeYes        bool
		strictDuplicates bool
		outputDir        string
		matchFlag        string
		maxTimeDiffSecs  int
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link unpaired live photos to their companion videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := assetdb.ParseMatchMode(matchFlag)
			if err != nil {
				return err
			}
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

			runCtx := cmd.Context()
			repo, err := assetdb.Connect(runCtx, cfg.ConnString(), logger)
			if err != nil {
				return err
			}
			defer repo.Close(runCtx)

			runs, err := runlog.Open(dir)
			if err != nil {
				return err
			}
			defer runs.Close()

			out := cmd.OutOrStdout()
			client := immich.NewClient(cfg.API.URL, cfg.API.Key, nil, logger)
			recorder := audit.NewRecorder(dir, logger)

			runner := workflow.New(workflow.Deps{
				Repo:     repo,
				API:      client,
				Operator: linker.NewOperator(client, recorder, out, logger),
				Recorder: recorder,
				Runs:     runs,
				Confirm:  workflow.NewConfirmer(os.Stdin, out, assumeYes),
				Preview: func(photo, video immich.AssetInfo) {
					fmt.Fprintln(out, "Example pair:")
					fmt.Fprintln(out, renderExamplePair(photo, video))
				},
				Out:      out,
				Logger:   logger,
				UserName: cfg.UserInfo.Name,
				LockPath: filepath.Join(dir, "livelink.lock"),
			})

			err = runner.Link(runCtx, workflow.LinkOptions{
				DryRun:           dryRun,
				TestRun:          testRun,
				Mode:             mode,
				StrictDuplicates: strictDuplicates,
				MaxTimeDiff:      time.Duration(maxTimeDiffSecs) * time.Second,
			})
			if errors.Is(err, workflow.ErrNoCandidates) {
				fmt.Fprintf(out, "Nothing to do: %v\n", err)
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Identify candidates without modifying any asset")
	cmd.Flags().BoolVar(&testRun, "test-run", false, "Link only the first candidate pair")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")
	cmd.Flags().BoolVar(&strictDuplicates, "strict-duplicates", false, "Drop pairs whose photo stem matches more than one photo")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for audit CSV files (default from config)")
	cmd.Flags().StringVar(&matchFlag, "match", "auto", "Filename match mode: auto, filename, or stem")
	cmd.Flags().IntVar(&maxTimeDiffSecs, "max-time-diff", 0, "Drop pairs whose capture times differ by more than N seconds (0 disables)")

	return cmd
}
