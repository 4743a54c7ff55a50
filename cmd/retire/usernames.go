package main

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openlearn-labs/retirement/internal/batch"
)

func newReplaceUsernamesCmd(logger *slog.Logger, configFile *string) *cobra.Command {
	var inputCSV string

	cmd := &cobra.Command{
		Use:   "replace-usernames",
		Short: "Bulk-replace usernames from a current,desired CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			adapters, err := buildAdapters(cfg, logger)
			if err != nil {
				return err
			}

			outputCSV := resultsPath(inputCSV)
			replacer := batch.NewReplacer(logger, adapters.LMS)
			_, failed, err := replacer.Run(cmd.Context(), inputCSV, outputCSV)
			if err != nil {
				return &exitError{code: exitBadInput, err: err}
			}
			if failed > 0 {
				return fail(exitFetch, "%d username replacements did not succeed, see %s", failed, outputCSV)
			}
			logger.Info("all username replacements succeeded", "results", outputCSV)
			return nil
		},
	}
	cmd.Flags().StringVar(&inputCSV, "username-replacement-csv", "", "CSV of current_username,desired_username")
	_ = cmd.MarkFlagRequired("username-replacement-csv")
	return cmd
}

// resultsPath derives the results filename from the input filename.
func resultsPath(input string) string {
	if strings.HasSuffix(input, ".csv") {
		return strings.TrimSuffix(input, ".csv") + "_results.csv"
	}
	return input + "_results.csv"
}
