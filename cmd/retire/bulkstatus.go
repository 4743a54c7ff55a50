package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlearn-labs/retirement/internal/batch"
)

const dateFlagFormat = "2006-01-02"

func parseDateFlag(name, value string) (time.Time, error) {
	d, err := time.Parse(dateFlagFormat, value)
	if err != nil {
		return time.Time{}, fail(exitBadInput, "--%s: expected YYYY-MM-DD, got %q", name, value)
	}
	return d, nil
}

func newBulkStatusCmd(logger *slog.Logger, configFile *string) *cobra.Command {
	var (
		initialState string
		newState     string
		rewind       bool
		startDate    string
		endDate      string
	)

	cmd := &cobra.Command{
		Use:   "bulk-status",
		Short: "Force-set or rewind the state of learners in a date window",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDateFlag("start-date", startDate)
			if err != nil {
				return err
			}
			end, err := parseDateFlag("end-date", endDate)
			if err != nil {
				return err
			}

			update := batch.StatusUpdate{
				InitialState: initialState,
				NewState:     newState,
				Rewind:       rewind,
				Start:        start,
				End:          end,
			}
			// Reject contradictory flags before the config is even read.
			if err := update.Validate(time.Now()); err != nil {
				return &exitError{code: exitBadInput, err: err}
			}

			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			adapters, err := buildAdapters(cfg, logger)
			if err != nil {
				return err
			}

			updater := batch.NewStatusUpdater(logger, adapters.LMS)
			count, err := updater.Run(cmd.Context(), update)
			if err != nil {
				return &exitError{code: exitFetch, err: err}
			}
			logger.Info("bulk status update complete", "updated", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&initialState, "initial-state", "", "state learners must currently be in")
	cmd.Flags().StringVar(&newState, "new-state", "", "state to force every matched learner into")
	cmd.Flags().BoolVar(&rewind, "rewind", false, "return each learner to its own recorded last state")
	cmd.Flags().StringVar(&startDate, "start-date", "", "window start, YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "end-date", "", "window end (inclusive), YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("initial-state")
	_ = cmd.MarkFlagRequired("start-date")
	_ = cmd.MarkFlagRequired("end-date")
	return cmd
}
