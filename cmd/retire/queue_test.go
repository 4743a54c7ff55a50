package main

import (
	"errors"
	"log/slog"
	"testing"
)

func TestQueueThresholdDefaultsNonZero(t *testing.T) {
	configFile := ""
	cmd := newQueueCmd(slog.New(slog.DiscardHandler), &configFile)

	flag := cmd.Flags().Lookup("user-count-error-threshold")
	if flag == nil {
		t.Fatal("user-count-error-threshold flag not registered")
	}
	if flag.DefValue != "200" {
		t.Errorf("default threshold = %q, want 200", flag.DefValue)
	}
}

func TestQueueRejectsNonPositiveThreshold(t *testing.T) {
	for _, value := range []string{"0", "-5"} {
		t.Run(value, func(t *testing.T) {
			configFile := ""
			cmd := newQueueCmd(slog.New(slog.DiscardHandler), &configFile)
			if err := cmd.Flags().Set("user-count-error-threshold", value); err != nil {
				t.Fatalf("set flag: %v", err)
			}

			err := cmd.RunE(cmd, nil)
			var exit *exitError
			if !errors.As(err, &exit) {
				t.Fatalf("err = %v, want exitError", err)
			}
			if exit.code != exitBadInput {
				t.Errorf("exit code = %d, want %d", exit.code, exitBadInput)
			}
		})
	}
}
