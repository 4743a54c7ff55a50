package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openlearn-labs/retirement/internal/pipeline"
)

func newRetireCmd(logger *slog.Logger, configFile *string) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "retire",
		Short: "Run the full retirement pipeline for one learner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			adapters, err := buildAdapters(cfg, logger)
			if err != nil {
				return err
			}
			pipe, err := cfg.BuildPipeline()
			if err != nil {
				return fail(exitSetup, "build pipeline: %w", err)
			}

			var segmentIDs pipeline.SegmentIDSource
			if cfg.FetchEcommerceSegmentID {
				// Config validation guarantees the ecommerce adapter exists
				// when enrichment is on.
				segmentIDs = adapters.Ecommerce
			}
			engine, err := pipeline.NewEngine(logger, adapters.LMS, segmentIDs, pipe, adapters.Resolve)
			if err != nil {
				return fail(exitSetup, "build engine: %w", err)
			}

			err = engine.RetireLearner(cmd.Context(), username)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, pipeline.ErrTerminalState):
				return &exitError{code: exitTerminalState, err: err}
			case errors.Is(err, pipeline.ErrWorkingState):
				return &exitError{code: exitWorkingState, err: err}
			case errors.Is(err, pipeline.ErrUnknownState):
				return &exitError{code: exitUnknownState, err: err}
			default:
				return &exitError{code: exitRetiring, err: err}
			}
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "learner to retire")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
