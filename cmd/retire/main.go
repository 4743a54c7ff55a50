// Command retire drives the learner retirement pipeline: single-learner
// retirement, queue listing, archive-and-cleanup, administrative bulk
// status updates, partner reports and username replacement. Every
// subcommand is a single-threaded batch run; schedule one process per
// parallel unit of work.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openlearn-labs/retirement/internal/config"
	"github.com/openlearn-labs/retirement/internal/registry"
)

// Exit codes. Each documented failure mode gets its own code so external
// schedulers can branch on the outcome without parsing logs.
const (
	exitSetup         = -1  // config load or client construction failed
	exitTerminalState = -2  // learner already finished, errored or aborted
	exitWorkingState  = -3  // learner mid-run in another process
	exitRetiring      = -4  // a pipeline step failed
	exitFetch         = -5  // learner or queue fetch failed
	exitUnknownState  = -6  // learner state not in the configured pipeline
	exitBadInput      = -7  // contradictory flags or invalid dates
	exitThreshold     = -8  // queue above the safety ceiling
	exitUnmappedOrg   = -9  // partner report org without a folder mapping
	exitUpload        = -10 // archive or report delivery failed
	exitCleanup       = -11 // post-upload cleanup failed
)

// exitError pairs a failure with its process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(logger)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("run failed", "error", err.Error())
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(exitSetup)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "retire",
		Short:         "Learner retirement pipeline drivers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config-file", "", "path to the YAML configuration file")
	_ = root.MarkPersistentFlagRequired("config-file")

	root.AddCommand(
		newRetireCmd(logger, &configFile),
		newQueueCmd(logger, &configFile),
		newBulkStatusCmd(logger, &configFile),
		newArchiveCmd(logger, &configFile),
		newPartnerReportCmd(logger, &configFile),
		newReplaceUsernamesCmd(logger, &configFile),
	)
	return root
}

// loadConfig loads the config file, mapping failure onto the setup exit
// code.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &exitError{code: exitSetup, err: err}
	}
	return cfg, nil
}

// buildAdapters constructs the configured service adapters.
func buildAdapters(cfg *config.Config, logger *slog.Logger) (*registry.Adapters, error) {
	adapters, err := registry.Build(cfg, logger)
	if err != nil {
		return nil, &exitError{code: exitSetup, err: err}
	}
	return adapters, nil
}
