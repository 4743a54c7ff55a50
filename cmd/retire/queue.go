package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openlearn-labs/retirement/internal/batch"
)

func newQueueCmd(logger *slog.Logger, configFile *string) *cobra.Command {
	var (
		coolOffDays  int
		outputDir    string
		threshold    int
		maxBatchSize int
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Emit one retirement work unit per eligible learner",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The safety ceiling is not optional; a runaway queue must
			// never be mass-processed because someone zeroed the flag.
			if threshold < 1 {
				return fail(exitBadInput, "--user-count-error-threshold must be positive, got %d", threshold)
			}
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			adapters, err := buildAdapters(cfg, logger)
			if err != nil {
				return err
			}

			lister := batch.NewQueueLister(logger, adapters.LMS)
			_, err = lister.Run(cmd.Context(), outputDir, coolOffDays, threshold, maxBatchSize)
			var thresholdErr *batch.ThresholdError
			switch {
			case err == nil:
				return nil
			case errors.As(err, &thresholdErr):
				return &exitError{code: exitThreshold, err: err}
			default:
				return &exitError{code: exitFetch, err: err}
			}
		},
	}
	cmd.Flags().IntVar(&coolOffDays, "cool-off-days", 7, "minimum days since the retirement request")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "directory receiving the properties files")
	cmd.Flags().IntVar(&threshold, "user-count-error-threshold", 200, "abort if more learners than this are eligible")
	cmd.Flags().IntVar(&maxBatchSize, "max-user-batch-size", 0, "cap learners per run (0 means no cap)")
	return cmd
}
