package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlearn-labs/retirement/internal/batch"
	"github.com/openlearn-labs/retirement/internal/platform/objectstore"
)

func newArchiveCmd(logger *slog.Logger, configFile *string) *cobra.Command {
	var (
		coolOffDays int
		dryRun      bool
		startDate   string
		endDate     string
		batchSize   int
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive completed retirements to the object store and delete them from the LMS",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDateFlag("start-date", startDate)
			if err != nil {
				return err
			}
			end, err := parseDateFlag("end-date", endDate)
			if err != nil {
				return err
			}
			if batchSize < 1 {
				return fail(exitBadInput, "--batch-size must be at least 1")
			}
			latest := time.Now().AddDate(0, 0, -coolOffDays)
			if end.After(latest) {
				return fail(exitBadInput,
					"--end-date %s is inside the %d-day cool-off window (latest allowed: %s)",
					endDate, coolOffDays, latest.Format(dateFlagFormat))
			}

			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			adapters, err := buildAdapters(cfg, logger)
			if err != nil {
				return err
			}
			store, err := objectstore.NewMinioStore(cfg.Archive.Store)
			if err != nil {
				return &exitError{code: exitSetup, err: err}
			}

			archiver := batch.NewArchiver(logger, adapters.LMS, store, cfg.Archive.KeyPrefix, batchSize, dryRun)
			if err := archiver.Run(cmd.Context(), start, end); err != nil {
				var cleanupErr *batch.CleanupError
				if errors.As(err, &cleanupErr) {
					return &exitError{code: exitCleanup, err: err}
				}
				return &exitError{code: exitUpload, err: err}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&coolOffDays, "cool-off-days", 30, "minimum days since completion before archival")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "upload archives but keep the LMS records")
	cmd.Flags().StringVar(&startDate, "start-date", "", "window start, YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "end-date", "", "window end (inclusive), YYYY-MM-DD")
	cmd.Flags().IntVar(&batchSize, "batch-size", 200, "learners per archive object")
	_ = cmd.MarkFlagRequired("start-date")
	_ = cmd.MarkFlagRequired("end-date")
	return cmd
}
