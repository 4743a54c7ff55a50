package batch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openlearn-labs/retirement/internal/domain"
)

type fakeQueueSource struct {
	learners []domain.LearnerRecord
	err      error

	states      []string
	coolOffDays int
}

func (s *fakeQueueSource) LearnersByStates(ctx context.Context, states []string, coolOffDays int) ([]domain.LearnerRecord, error) {
	s.states = states
	s.coolOffDays = coolOffDays
	return s.learners, s.err
}

func queueLearners(usernames ...string) []domain.LearnerRecord {
	out := make([]domain.LearnerRecord, 0, len(usernames))
	for _, u := range usernames {
		out = append(out, domain.LearnerRecord{OriginalUsername: u})
	}
	return out
}

func TestQueueListerWritesOneFilePerLearner(t *testing.T) {
	dir := t.TempDir()
	source := &fakeQueueSource{learners: queueLearners("alice", "bob", "carol")}
	lister := NewQueueLister(slog.New(slog.DiscardHandler), source)

	count, err := lister.Run(context.Background(), dir, 7, 100, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	if source.coolOffDays != 7 {
		t.Errorf("cool off days = %d, want 7", source.coolOffDays)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("wrote %d files, want 3", len(entries))
	}
	found := map[string]bool{}
	for _, entry := range entries {
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			t.Fatal(err)
		}
		line := strings.TrimSpace(string(raw))
		if !strings.HasPrefix(line, "RETIREMENT_USERNAME=") {
			t.Fatalf("file %s content = %q", entry.Name(), line)
		}
		found[strings.TrimPrefix(line, "RETIREMENT_USERNAME=")] = true
	}
	for _, username := range []string{"alice", "bob", "carol"} {
		if !found[username] {
			t.Errorf("no work unit written for %s", username)
		}
	}
}

func TestQueueListerSafetyThreshold(t *testing.T) {
	dir := t.TempDir()
	source := &fakeQueueSource{learners: queueLearners("a", "b", "c", "d")}
	lister := NewQueueLister(slog.New(slog.DiscardHandler), source)

	_, err := lister.Run(context.Background(), dir, 7, 3, 0)
	var thresholdErr *ThresholdError
	if !errors.As(err, &thresholdErr) {
		t.Fatalf("err = %v, want ThresholdError", err)
	}
	if thresholdErr.Count != 4 || thresholdErr.Threshold != 3 {
		t.Errorf("ThresholdError = %+v", thresholdErr)
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("wrote %d files above threshold, want 0", len(entries))
	}
}

func TestQueueListerMaxBatchSizeCap(t *testing.T) {
	dir := t.TempDir()
	source := &fakeQueueSource{learners: queueLearners("a", "b", "c", "d")}
	lister := NewQueueLister(slog.New(slog.DiscardHandler), source)

	count, err := lister.Run(context.Background(), dir, 7, 100, 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("wrote %d files, want 2", len(entries))
	}
}

func TestQueueListerDefaultStates(t *testing.T) {
	source := &fakeQueueSource{}
	lister := NewQueueLister(slog.New(slog.DiscardHandler), source)

	if _, err := lister.Run(context.Background(), t.TempDir(), 1, 0, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{domain.StatePending, domain.StateComplete, domain.StateErrored, domain.StateAborted}
	if len(source.states) != len(want) {
		t.Fatalf("states = %v, want %v", source.states, want)
	}
	for i := range want {
		if source.states[i] != want[i] {
			t.Errorf("state %d = %q, want %q", i, source.states[i], want[i])
		}
	}
}
