package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/openlearn-labs/retirement/internal/domain"
)

type transition struct {
	State   string
	Message string
}

type fakeStore struct {
	learner     *domain.LearnerRecord
	transitions []transition
	// failOnState makes SetState fail when asked for that state.
	failOnState string
}

func (s *fakeStore) GetLearner(ctx context.Context, username string) (*domain.LearnerRecord, error) {
	if s.learner == nil || s.learner.OriginalUsername != username {
		return nil, fmt.Errorf("unknown learner %s", username)
	}
	copied := *s.learner
	return &copied, nil
}

func (s *fakeStore) SetState(ctx context.Context, learner *domain.LearnerRecord, state, message string, force bool) error {
	if s.failOnState != "" && state == s.failOnState {
		return fmt.Errorf("lms rejected transition to %s", state)
	}
	s.transitions = append(s.transitions, transition{State: state, Message: message})
	return nil
}

type fakeOps struct {
	calls map[string]int
	// results maps operation to its outcome; missing means Completed.
	results map[string]domain.StepOutcome
	errs    map[string]error
}

func newFakeOps() *fakeOps {
	return &fakeOps{
		calls:   map[string]int{},
		results: map[string]domain.StepOutcome{},
		errs:    map[string]error{},
	}
}

func (f *fakeOps) resolve(service, operation string) (domain.StepFunc, error) {
	if service != "lms" {
		return nil, fmt.Errorf("unknown service %q", service)
	}
	op := operation
	return func(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
		f.calls[op]++
		if err := f.errs[op]; err != nil {
			return domain.StepOutcome{}, err
		}
		if outcome, ok := f.results[op]; ok {
			return outcome, nil
		}
		return domain.Completed(op), nil
	}, nil
}

func testPipeline(t *testing.T) *domain.Pipeline {
	t.Helper()
	p, err := domain.NewPipeline([]domain.Step{
		{StartState: "RETIRING_FORUMS", EndState: "FORUMS_COMPLETE", Service: "lms", Operation: "retire_forum"},
		{StartState: "RETIRING_ENROLLMENTS", EndState: "ENROLLMENTS_COMPLETE", Service: "lms", Operation: "unenroll"},
		{StartState: "RETIRING_LMS", EndState: "LMS_COMPLETE", Service: "lms", Operation: "lms_retire"},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func newTestEngine(t *testing.T, store *fakeStore, ops *fakeOps) *Engine {
	t.Helper()
	engine, err := NewEngine(slog.New(slog.DiscardHandler), store, nil, testPipeline(t), ops.resolve)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func learnerIn(state string) *domain.LearnerRecord {
	return &domain.LearnerRecord{
		UserID:           42,
		OriginalUsername: "alice",
		OriginalEmail:    "alice@example.com",
		CurrentState:     domain.LearnerState{Name: state},
	}
}

func stateNames(transitions []transition) []string {
	out := make([]string, len(transitions))
	for i, tr := range transitions {
		out[i] = tr.State
	}
	return out
}

func TestRetireLearnerFullRun(t *testing.T) {
	store := &fakeStore{learner: learnerIn(domain.StatePending)}
	ops := newFakeOps()
	engine := newTestEngine(t, store, ops)

	if err := engine.RetireLearner(context.Background(), "alice"); err != nil {
		t.Fatalf("RetireLearner: %v", err)
	}

	want := []string{
		"RETIRING_FORUMS", "FORUMS_COMPLETE",
		"RETIRING_ENROLLMENTS", "ENROLLMENTS_COMPLETE",
		"RETIRING_LMS", "LMS_COMPLETE",
		domain.StateComplete,
	}
	got := stateNames(store.transitions)
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
	for _, op := range []string{"retire_forum", "unenroll", "lms_retire"} {
		if ops.calls[op] != 1 {
			t.Errorf("%s called %d times, want 1", op, ops.calls[op])
		}
	}
}

func TestRetireLearnerResumesFromRecordedState(t *testing.T) {
	store := &fakeStore{learner: learnerIn("FORUMS_COMPLETE")}
	ops := newFakeOps()
	engine := newTestEngine(t, store, ops)

	if err := engine.RetireLearner(context.Background(), "alice"); err != nil {
		t.Fatalf("RetireLearner: %v", err)
	}

	want := []string{
		"RETIRING_ENROLLMENTS", "ENROLLMENTS_COMPLETE",
		"RETIRING_LMS", "LMS_COMPLETE",
		domain.StateComplete,
	}
	got := stateNames(store.transitions)
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
	if ops.calls["retire_forum"] != 0 {
		t.Errorf("retire_forum called %d times, want 0 (already done)", ops.calls["retire_forum"])
	}
}

func TestRetireLearnerRejectsTerminalStates(t *testing.T) {
	for _, state := range domain.TerminalStates {
		t.Run(state, func(t *testing.T) {
			store := &fakeStore{learner: learnerIn(state)}
			ops := newFakeOps()
			engine := newTestEngine(t, store, ops)

			err := engine.RetireLearner(context.Background(), "alice")
			if !errors.Is(err, ErrTerminalState) {
				t.Fatalf("err = %v, want ErrTerminalState", err)
			}
			if len(store.transitions) != 0 {
				t.Errorf("transitions = %v, want none", store.transitions)
			}
			if len(ops.calls) != 0 {
				t.Errorf("adapter calls = %v, want none", ops.calls)
			}
		})
	}
}

func TestRetireLearnerRejectsWorkingStates(t *testing.T) {
	for _, state := range []string{"RETIRING_FORUMS", "RETIRING_ENROLLMENTS", "RETIRING_LMS"} {
		t.Run(state, func(t *testing.T) {
			store := &fakeStore{learner: learnerIn(state)}
			ops := newFakeOps()
			engine := newTestEngine(t, store, ops)

			err := engine.RetireLearner(context.Background(), "alice")
			if !errors.Is(err, ErrWorkingState) {
				t.Fatalf("err = %v, want ErrWorkingState", err)
			}
			if len(store.transitions) != 0 || len(ops.calls) != 0 {
				t.Error("rejection must happen before any side effect")
			}
		})
	}
}

func TestRetireLearnerUnknownState(t *testing.T) {
	store := &fakeStore{learner: learnerIn("SOME_OLD_STATE")}
	engine := newTestEngine(t, store, newFakeOps())

	err := engine.RetireLearner(context.Background(), "alice")
	if !errors.Is(err, ErrUnknownState) {
		t.Fatalf("err = %v, want ErrUnknownState", err)
	}
	var stateErr *StateError
	if !errors.As(err, &stateErr) || stateErr.State != "SOME_OLD_STATE" {
		t.Errorf("err = %v, want StateError carrying the state", err)
	}
}

func TestRetireLearnerAlreadyAbsentIsSuccess(t *testing.T) {
	store := &fakeStore{learner: learnerIn(domain.StatePending)}
	ops := newFakeOps()
	ops.results["retire_forum"] = domain.AlreadyAbsent("no forum data")
	engine := newTestEngine(t, store, ops)

	if err := engine.RetireLearner(context.Background(), "alice"); err != nil {
		t.Fatalf("RetireLearner: %v", err)
	}
	if got := store.transitions[1]; got.State != "FORUMS_COMPLETE" || got.Message != "already_absent: no forum data" {
		t.Errorf("transition = %+v, want FORUMS_COMPLETE with absent message", got)
	}
	if final := store.transitions[len(store.transitions)-1].State; final != domain.StateComplete {
		t.Errorf("final state = %q, want COMPLETE", final)
	}
}

func TestRetireLearnerAdapterFailureMarksErrored(t *testing.T) {
	store := &fakeStore{learner: learnerIn(domain.StatePending)}
	ops := newFakeOps()
	ops.errs["unenroll"] = errors.New("enrollment API exploded")
	engine := newTestEngine(t, store, ops)

	err := engine.RetireLearner(context.Background(), "alice")
	if err == nil {
		t.Fatal("RetireLearner succeeded, want error")
	}

	got := stateNames(store.transitions)
	want := []string{"RETIRING_FORUMS", "FORUMS_COMPLETE", "RETIRING_ENROLLMENTS", domain.StateErrored}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
	if ops.calls["lms_retire"] != 0 {
		t.Error("steps after a failure must not run")
	}
}

func TestRetireLearnerErroredPersistFailureKeepsCause(t *testing.T) {
	store := &fakeStore{
		learner:     learnerIn(domain.StatePending),
		failOnState: domain.StateErrored,
	}
	ops := newFakeOps()
	cause := errors.New("forum API exploded")
	ops.errs["retire_forum"] = cause
	engine := newTestEngine(t, store, ops)

	err := engine.RetireLearner(context.Background(), "alice")
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want the original adapter error", err)
	}
}

func TestRetireLearnerSegmentEnrichment(t *testing.T) {
	store := &fakeStore{learner: learnerIn(domain.StatePending)}
	var seen string
	resolve := func(service, operation string) (domain.StepFunc, error) {
		return func(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
			seen = learner.EcommerceSegmentID
			return domain.Completed(operation), nil
		}, nil
	}
	engine, err := NewEngine(slog.New(slog.DiscardHandler), store, trackingIDFunc(func(ctx context.Context, learner *domain.LearnerRecord) (string, error) {
		return "seg-123", nil
	}), testPipeline(t), resolve)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if err := engine.RetireLearner(context.Background(), "alice"); err != nil {
		t.Fatalf("RetireLearner: %v", err)
	}
	if seen != "seg-123" {
		t.Errorf("segment id seen by steps = %q, want seg-123", seen)
	}
}

type trackingIDFunc func(ctx context.Context, learner *domain.LearnerRecord) (string, error)

func (f trackingIDFunc) TrackingID(ctx context.Context, learner *domain.LearnerRecord) (string, error) {
	return f(ctx, learner)
}

func TestNewEngineRejectsUnknownOperation(t *testing.T) {
	pipe, err := domain.NewPipeline([]domain.Step{
		{StartState: "RETIRING_X", EndState: "X_COMPLETE", Service: "lms", Operation: "does_not_exist"},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	resolve := func(service, operation string) (domain.StepFunc, error) {
		return nil, fmt.Errorf("service %q has no operation %q", service, operation)
	}
	if _, err := NewEngine(slog.New(slog.DiscardHandler), &fakeStore{}, nil, pipe, resolve); err == nil {
		t.Fatal("NewEngine succeeded with unknown operation, want error")
	}
}
