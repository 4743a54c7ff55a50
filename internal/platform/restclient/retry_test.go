package restclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock drives Policy.Do without real sleeping by advancing a
// simulated clock through the sleep seam.
type fakeClock struct {
	elapsed time.Duration
	sleeps  []time.Duration
}

func (f *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	f.elapsed += d
	f.sleeps = append(f.sleeps, d)
	return nil
}

func testPolicy(clock *fakeClock) Policy {
	p := DefaultPolicy()
	p.Budget = 10 * time.Second
	p.BaseDelay = 1 * time.Second
	p.MaxDelay = 4 * time.Second
	p.FixedDelay = 2 * time.Second
	return p.WithSleep(clock.sleep)
}

func TestPolicyEndless500IsBoundedByBudget(t *testing.T) {
	clock := &fakeClock{}
	p := testPolicy(clock)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return &HTTPError{StatusCode: 500, Method: "GET", URL: "http://lms/x"}
	})
	if err == nil {
		t.Fatal("Do succeeded, want budget exhaustion")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 500 {
		t.Fatalf("err = %v, want wrapped HTTP 500", err)
	}

	// 1+2+4+4... sleeps must stay within the 10s budget.
	var total time.Duration
	for _, d := range clock.sleeps {
		total += d
	}
	if total > p.Budget {
		t.Errorf("slept %s, budget %s", total, p.Budget)
	}
	if calls < 2 {
		t.Errorf("calls = %d, want retries before giving up", calls)
	}
}

func TestPolicy404FailsWithoutRetry(t *testing.T) {
	clock := &fakeClock{}
	p := testPolicy(clock)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return &HTTPError{StatusCode: 404, Method: "GET", URL: "http://lms/x"}
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want exactly 1", calls)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", clock.sleeps)
	}
}

func TestPolicy504RetriesFixedInterval(t *testing.T) {
	clock := &fakeClock{}
	p := testPolicy(clock)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return &HTTPError{StatusCode: 504, Method: "POST", URL: "http://lms/x"}
	})
	if !errors.Is(err, ErrGatewayTimeout) {
		t.Fatalf("err = %v, want ErrGatewayTimeout", err)
	}
	// Initial attempt plus FixedRetries.
	if calls != 1+p.FixedRetries {
		t.Errorf("calls = %d, want %d", calls, 1+p.FixedRetries)
	}
	for i, d := range clock.sleeps {
		if d != p.FixedDelay {
			t.Errorf("sleep %d = %s, want fixed %s", i, d, p.FixedDelay)
		}
	}
}

func TestPolicyRecoversAfterTransientErrors(t *testing.T) {
	clock := &fakeClock{}
	p := testPolicy(clock)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &HTTPError{StatusCode: 502, Method: "GET", URL: "http://lms/x"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(clock.sleeps) != 2 || clock.sleeps[0] != 1*time.Second || clock.sleeps[1] != 2*time.Second {
		t.Errorf("sleeps = %v, want [1s 2s]", clock.sleeps)
	}
}

func TestPolicyOther4xxFailsImmediately(t *testing.T) {
	clock := &fakeClock{}
	p := testPolicy(clock)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return &HTTPError{StatusCode: 403, Method: "GET", URL: "http://lms/x"}
	})
	if err == nil || calls != 1 {
		t.Fatalf("err = %v calls = %d, want immediate failure", err, calls)
	}
}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Action
	}{
		{"nil-ish generic", errors.New("boom"), Fail},
		{"404", &HTTPError{StatusCode: 404}, Fail},
		{"400", &HTTPError{StatusCode: 400}, Fail},
		{"429", &HTTPError{StatusCode: 429}, RetryBackoff},
		{"500", &HTTPError{StatusCode: 500}, RetryBackoff},
		{"503", &HTTPError{StatusCode: 503}, RetryBackoff},
		{"504", &HTTPError{StatusCode: 504}, RetryFixed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHTTP(tc.err); got != tc.want {
				t.Errorf("ClassifyHTTP = %v, want %v", got, tc.want)
			}
		})
	}
}
