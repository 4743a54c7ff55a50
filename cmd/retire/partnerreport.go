package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openlearn-labs/retirement/internal/batch"
	"github.com/openlearn-labs/retirement/internal/services/googledrive"
)

func newPartnerReportCmd(logger *slog.Logger, configFile *string) *cobra.Command {
	var (
		secretsFile string
		outputDir   string
		comments    bool
	)

	cmd := &cobra.Command{
		Use:   "partner-report",
		Short: "Generate and deliver per-partner retirement reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			adapters, err := buildAdapters(cfg, logger)
			if err != nil {
				return err
			}
			drive, err := googledrive.New(cmd.Context(), secretsFile, logger)
			if err != nil {
				return &exitError{code: exitSetup, err: err}
			}

			generator := batch.NewReportGenerator(logger, adapters.LMS, drive,
				cfg.PlatformName, cfg.PartnerReport.OrgFolderMapping, comments)
			err = generator.Run(cmd.Context(), outputDir)
			var unmapped *batch.UnmappedOrgError
			switch {
			case err == nil:
				return nil
			case errors.As(err, &unmapped):
				return &exitError{code: exitUnmappedOrg, err: err}
			default:
				return &exitError{code: exitUpload, err: err}
			}
		},
	}
	cmd.Flags().StringVar(&secretsFile, "google-secrets-file", "", "Google service account credentials file")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "directory receiving the generated CSVs")
	cmd.Flags().BoolVar(&comments, "comments", true, "post a notification comment on each delivered report")
	_ = cmd.MarkFlagRequired("google-secrets-file")
	return cmd
}
