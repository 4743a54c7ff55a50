// Package batch holds the drivers that operate on many learners per run:
// queue listing, archive-and-cleanup, bulk status update, partner reports
// and username replacement. Each driver is single-threaded; parallelism
// across learners is a scheduling concern outside this process.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/openlearn-labs/retirement/internal/domain"
)

// QueueSource lists learners eligible for processing, implemented by the
// LMS adapter.
type QueueSource interface {
	LearnersByStates(ctx context.Context, states []string, coolOffDays int) ([]domain.LearnerRecord, error)
}

// ThresholdError means the candidate queue is larger than the configured
// safety ceiling. A queue that big is more likely a bug or an attack than
// a real workload, so the whole run is rejected.
type ThresholdError struct {
	Count     int
	Threshold int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("%d learners pending, above the safety threshold of %d; refusing to emit work units", e.Count, e.Threshold)
}

// QueueLister emits one work-unit properties file per eligible learner.
type QueueLister struct {
	logger *slog.Logger
	source QueueSource

	// States selects which queue states are eligible. The default is
	// PENDING plus every terminal state.
	States []string
}

func NewQueueLister(logger *slog.Logger, source QueueSource) *QueueLister {
	return &QueueLister{
		logger: logger,
		source: source,
		States: append([]string{domain.StatePending}, domain.TerminalStates...),
	}
}

// Run queries the queue and writes one properties file per learner into
// outputDir. If the candidate count exceeds threshold, nothing is written
// and a ThresholdError is returned. maxBatchSize > 0 caps how many
// learners get work units this run; the rest wait for the next one.
func (q *QueueLister) Run(ctx context.Context, outputDir string, coolOffDays, threshold, maxBatchSize int) (int, error) {
	learners, err := q.source.LearnersByStates(ctx, q.States, coolOffDays)
	if err != nil {
		return 0, fmt.Errorf("list retirement queue: %w", err)
	}

	if threshold > 0 && len(learners) > threshold {
		return 0, &ThresholdError{Count: len(learners), Threshold: threshold}
	}
	if maxBatchSize > 0 && len(learners) > maxBatchSize {
		q.logger.Info("capping run to max batch size",
			"eligible", len(learners), "max_batch_size", maxBatchSize)
		learners = learners[:maxBatchSize]
	}

	for i, learner := range learners {
		if err := writeWorkUnit(outputDir, i, learner.OriginalUsername); err != nil {
			return i, err
		}
	}
	q.logger.Info("emitted retirement work units",
		"count", len(learners), "output_dir", outputDir)
	return len(learners), nil
}

// writeWorkUnit writes one scheduler properties file. The filename hashes
// the username so usernames with filesystem-hostile characters still get
// stable, unique, safe names.
func writeWorkUnit(dir string, index int, username string) error {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(username))
	name := fmt.Sprintf("learner_%d_%s.properties", index, id)
	content := fmt.Sprintf("RETIREMENT_USERNAME=%s\n", username)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write work unit for %s: %w", username, err)
	}
	return nil
}
