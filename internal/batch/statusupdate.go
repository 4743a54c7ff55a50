package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openlearn-labs/retirement/internal/domain"
)

// StatusStore is the LMS surface the bulk status updater needs.
type StatusStore interface {
	LearnersByDateRange(ctx context.Context, state string, start, end time.Time) ([]domain.LearnerRecord, error)
	SetState(ctx context.Context, learner *domain.LearnerRecord, state, message string, force bool) error
}

// StatusUpdate describes one administrative bulk state change. Exactly
// one of NewState and Rewind must be set: NewState forces every matched
// learner into that state, Rewind returns each learner to its own
// recorded last state (the recovery path for learners stuck in ERRORED).
type StatusUpdate struct {
	InitialState string
	NewState     string
	Rewind       bool
	Start        time.Time
	End          time.Time
}

// Validate rejects a misconfigured update before any learner is fetched
// or touched. now is injected for testability.
func (u StatusUpdate) Validate(now time.Time) error {
	if u.InitialState == "" {
		return fmt.Errorf("initial state is required")
	}
	if u.Rewind && u.NewState != "" {
		return fmt.Errorf("new state and rewind are mutually exclusive")
	}
	if !u.Rewind && u.NewState == "" {
		return fmt.Errorf("either a new state or rewind is required")
	}
	if u.Start.After(u.End) {
		return fmt.Errorf("start date %s is after end date %s",
			u.Start.Format(archiveDateFormat), u.End.Format(archiveDateFormat))
	}
	if u.End.After(now) {
		return fmt.Errorf("end date %s is in the future", u.End.Format(archiveDateFormat))
	}
	return nil
}

// StatusUpdater applies administrative state changes to batches of
// learners.
type StatusUpdater struct {
	logger *slog.Logger
	store  StatusStore
}

func NewStatusUpdater(logger *slog.Logger, store StatusStore) *StatusUpdater {
	return &StatusUpdater{logger: logger, store: store}
}

// Run validates the update, fetches the matching learners and applies
// the transition to each with the LMS forward-only check bypassed. The
// first per-learner failure stops the run; already-updated learners
// keep their new state.
func (s *StatusUpdater) Run(ctx context.Context, update StatusUpdate) (int, error) {
	if err := update.Validate(time.Now()); err != nil {
		return 0, err
	}

	learners, err := s.store.LearnersByDateRange(ctx, update.InitialState, update.Start, update.End)
	if err != nil {
		return 0, fmt.Errorf("fetch learners in %s: %w", update.InitialState, err)
	}

	for i := range learners {
		learner := &learners[i]
		target := update.NewState
		message := "Force-set by bulk status update"
		if update.Rewind {
			target = learner.LastState.Name
			message = "Rewound to last state by bulk status update"
			if target == "" {
				return i, fmt.Errorf("learner %s has no recorded last state to rewind to", learner.OriginalUsername)
			}
		}
		if err := s.store.SetState(ctx, learner, target, message, true); err != nil {
			return i, fmt.Errorf("update %s: %w", learner.OriginalUsername, err)
		}
		s.logger.Info("learner state updated",
			"username", learner.OriginalUsername,
			"from", update.InitialState,
			"to", target)
	}
	return len(learners), nil
}
