package batch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/openlearn-labs/retirement/internal/services/lms"
)

// Per-user replacement statuses written to the results CSV. PARTIALLY
// FAILED marks users whose chunk errored in flight or who came back in
// neither result list: the LMS may have applied the replacement to some
// downstream systems before failing.
const (
	ReplaceSuccess       = "SUCCESS"
	ReplaceFailed        = "FAILED"
	ReplacePartialFailed = "PARTIALLY FAILED"
)

const defaultReplaceChunkSize = 50

// UsernameReplacer is the LMS surface for bulk username replacement.
type UsernameReplacer interface {
	ReplaceUsernames(ctx context.Context, pairs []lms.UsernamePair) (*lms.ReplacementResult, error)
}

// Replacer drives bulk username replacement from an input CSV of
// current,desired pairs to a per-user results CSV.
type Replacer struct {
	logger    *slog.Logger
	lms       UsernameReplacer
	chunkSize int
}

func NewReplacer(logger *slog.Logger, replacer UsernameReplacer) *Replacer {
	return &Replacer{logger: logger, lms: replacer, chunkSize: defaultReplaceChunkSize}
}

// Run reads the replacement pairs from inputPath, submits them to the
// LMS in chunks, and writes one status row per user to outputPath. Run
// itself only fails on I/O problems; per-user failures are reported in
// the results file, and the returned counts say how many users ended in
// each status.
func (r *Replacer) Run(ctx context.Context, inputPath, outputPath string) (succeeded, failed int, err error) {
	pairs, err := readReplacementCSV(inputPath)
	if err != nil {
		return 0, 0, err
	}
	if len(pairs) == 0 {
		return 0, 0, fmt.Errorf("replacement file %s holds no username pairs", inputPath)
	}

	statuses := make(map[string]string, len(pairs))
	for offset := 0; offset < len(pairs); offset += r.chunkSize {
		limit := offset + r.chunkSize
		if limit > len(pairs) {
			limit = len(pairs)
		}
		chunk := pairs[offset:limit]

		result, err := r.lms.ReplaceUsernames(ctx, chunk)
		if err != nil {
			r.logger.Error("username replacement chunk failed",
				"offset", offset, "size", len(chunk), "error", err.Error())
			for _, p := range chunk {
				statuses[p.Current] = ReplacePartialFailed
			}
			continue
		}
		for _, p := range chunk {
			statuses[p.Current] = ReplacePartialFailed
		}
		for _, username := range result.Successful {
			statuses[username] = ReplaceSuccess
		}
		for _, username := range result.Failed {
			statuses[username] = ReplaceFailed
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return 0, 0, fmt.Errorf("create results file: %w", err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write([]string{"current_username", "desired_username", "status"}); err != nil {
		return 0, 0, fmt.Errorf("write results: %w", err)
	}
	for _, p := range pairs {
		status := statuses[p.Current]
		if err := w.Write([]string{p.Current, p.Desired, status}); err != nil {
			return 0, 0, fmt.Errorf("write results: %w", err)
		}
		if status == ReplaceSuccess {
			succeeded++
		} else {
			failed++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, 0, fmt.Errorf("write results: %w", err)
	}

	r.logger.Info("username replacement complete",
		"total", len(pairs), "succeeded", succeeded, "failed", failed)
	return succeeded, failed, nil
}

func readReplacementCSV(path string) ([]lms.UsernamePair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replacement file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2

	var pairs []lms.UsernamePair
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return pairs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read replacement file: %w", err)
		}
		pairs = append(pairs, lms.UsernamePair{Current: row[0], Desired: row[1]})
	}
}
