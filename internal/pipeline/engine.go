// Package pipeline drives a single learner through the configured
// retirement steps. Every state transition is persisted to the LMS before
// the step's side effect is attempted and again after it completes, so a
// killed run resumes from the last durably recorded completed step with
// at-least-once semantics toward the external services.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openlearn-labs/retirement/internal/domain"
)

var (
	// ErrTerminalState means the learner already finished (or was aborted
	// or errored); normal processing must never re-enter the pipeline.
	ErrTerminalState = errors.New("learner is in a terminal state")

	// ErrWorkingState means the learner sits in a RETIRING_* state: a
	// prior run is either still in flight or crashed mid-step. Resuming
	// into the middle of another run's step is never safe.
	ErrWorkingState = errors.New("learner is in a working state")

	// ErrUnknownState means the learner's recorded state is not part of
	// the configured pipeline.
	ErrUnknownState = errors.New("learner state not in pipeline")
)

// StateError carries the learner and state that caused a rejection.
type StateError struct {
	Username string
	State    string
	reason   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v (state %s)", e.Username, e.reason, e.State)
}

func (e *StateError) Unwrap() error { return e.reason }

// StateStore is the durable record store, implemented by the LMS adapter.
type StateStore interface {
	GetLearner(ctx context.Context, username string) (*domain.LearnerRecord, error)
	SetState(ctx context.Context, learner *domain.LearnerRecord, state, message string, force bool) error
}

// SegmentIDSource fetches the ecommerce tracking id used to enrich the
// record before the pipeline runs. Implemented by the ecommerce adapter.
type SegmentIDSource interface {
	TrackingID(ctx context.Context, learner *domain.LearnerRecord) (string, error)
}

type resolvedStep struct {
	def domain.Step
	fn  domain.StepFunc
}

// Engine executes retirement runs. Construct one per process; it holds no
// learner state between runs.
type Engine struct {
	logger     *slog.Logger
	store      StateStore
	segmentIDs SegmentIDSource
	pipe       *domain.Pipeline
	steps      []resolvedStep
}

// NewEngine binds every configured step to its adapter operation via
// resolve, failing on the first unknown (service, operation) pair.
// segmentIDs may be nil when enrichment is disabled.
func NewEngine(
	logger *slog.Logger,
	store StateStore,
	segmentIDs SegmentIDSource,
	pipe *domain.Pipeline,
	resolve func(service, operation string) (domain.StepFunc, error),
) (*Engine, error) {
	defs := pipe.Steps()
	steps := make([]resolvedStep, 0, len(defs))
	for _, def := range defs {
		fn, err := resolve(def.Service, def.Operation)
		if err != nil {
			return nil, fmt.Errorf("pipeline step %s→%s: %w", def.StartState, def.EndState, err)
		}
		steps = append(steps, resolvedStep{def: def, fn: fn})
	}
	return &Engine{
		logger:     logger,
		store:      store,
		segmentIDs: segmentIDs,
		pipe:       pipe,
		steps:      steps,
	}, nil
}

// RetireLearner runs the pipeline for one learner, skipping steps a
// prior run already completed.
func (e *Engine) RetireLearner(ctx context.Context, username string) error {
	learner, err := e.store.GetLearner(ctx, username)
	if err != nil {
		return fmt.Errorf("fetch learner %s: %w", username, err)
	}

	state := learner.CurrentState.Name
	index, ok := e.pipe.ExecutionOrder(state)
	if !ok {
		return &StateError{Username: username, State: state, reason: ErrUnknownState}
	}
	if domain.IsTerminal(state) {
		return &StateError{Username: username, State: state, reason: ErrTerminalState}
	}
	if e.pipe.IsWorking(state) {
		return &StateError{Username: username, State: state, reason: ErrWorkingState}
	}

	if e.segmentIDs != nil {
		segmentID, err := e.segmentIDs.TrackingID(ctx, learner)
		if err != nil {
			return fmt.Errorf("enrich %s with segment id: %w", username, err)
		}
		learner.EcommerceSegmentID = segmentID
	}

	e.logger.Info("starting retirement", "username", username, "state", state)

	for _, step := range e.steps {
		startIndex, _ := e.pipe.ExecutionOrder(step.def.StartState)
		if startIndex < index {
			// Completed by a prior run; skipping is what makes the
			// pipeline resumable.
			e.logger.Info("skipping completed step",
				"username", username,
				"step", step.def.Operation,
				"state", step.def.StartState)
			continue
		}

		if err := e.store.SetState(ctx, learner, step.def.StartState, "Starting: "+step.def.Operation, false); err != nil {
			return e.errored(ctx, learner, err)
		}
		outcome, err := step.fn(ctx, learner)
		if err != nil {
			return e.errored(ctx, learner, fmt.Errorf("%s.%s: %w", step.def.Service, step.def.Operation, err))
		}
		if err := e.store.SetState(ctx, learner, step.def.EndState, outcome.Message(), false); err != nil {
			return e.errored(ctx, learner, err)
		}

		index, _ = e.pipe.ExecutionOrder(step.def.EndState)
		e.logger.Info("retirement step complete",
			"username", username,
			"step", step.def.Operation,
			"outcome", string(outcome.Kind))
	}

	if err := e.store.SetState(ctx, learner, domain.StateComplete, "Learner retirement complete", false); err != nil {
		return e.errored(ctx, learner, err)
	}
	e.logger.Info("retirement complete", "username", username)
	return nil
}

// errored records the failure on the learner best-effort. If even that
// persistence fails there is nothing durable left to do; log and return
// the original error.
func (e *Engine) errored(ctx context.Context, learner *domain.LearnerRecord, cause error) error {
	if err := e.store.SetState(ctx, learner, domain.StateErrored, cause.Error(), false); err != nil {
		e.logger.Error("could not persist ERRORED state",
			"username", learner.OriginalUsername,
			"cause", cause.Error(),
			"error", err.Error())
	}
	return cause
}
