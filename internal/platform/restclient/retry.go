package restclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Action is what the policy does with a failed attempt.
type Action int

const (
	// Fail stops immediately; the error is permanent for this run.
	Fail Action = iota
	// RetryBackoff retries with exponential backoff under the wall-clock
	// budget. Used for transient failures: connection errors, 429, 5xx.
	RetryBackoff
	// RetryFixed retries a small fixed number of times at a fixed
	// interval. Used for gateway timeouts, where hammering an overloaded
	// gateway with tight exponential retries is counterproductive.
	RetryFixed
)

// Classifier maps an error to the retry action for it.
type Classifier func(error) Action

// Policy is the single retry policy applied once per call site. The
// effective behavior is auditable from the struct fields; there are no
// stacked wrappers.
type Policy struct {
	// Budget bounds total wall-clock time spent on backoff retries,
	// including sleeps. It is a budget, not an attempt count.
	Budget time.Duration
	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff sleep.
	MaxDelay time.Duration
	// FixedDelay and FixedRetries control the RetryFixed path.
	FixedDelay   time.Duration
	FixedRetries int
	// Classify decides the action per error. Defaults to ClassifyHTTP.
	Classify Classifier

	// sleep is a test seam; nil means real context-aware sleeping.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the policy used for service calls: exponential
// backoff base 2 inside a 10 minute budget, and up to 2 fixed 60 second
// retries for gateway timeouts.
func DefaultPolicy() Policy {
	return Policy{
		Budget:       10 * time.Minute,
		BaseDelay:    1 * time.Second,
		MaxDelay:     2 * time.Minute,
		FixedDelay:   60 * time.Second,
		FixedRetries: 2,
		Classify:     ClassifyHTTP,
	}
}

// WithSleep returns a copy of the policy using the given sleep function.
// Tests use this to observe delays without waiting.
func (p Policy) WithSleep(sleep func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = sleep
	return p
}

// Do runs op, retrying per the classifier until success, a permanent
// failure, budget exhaustion, or context cancellation.
func (p Policy) Do(ctx context.Context, op func() error) error {
	classify := p.Classify
	if classify == nil {
		classify = ClassifyHTTP
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	start := time.Now()
	delay := p.BaseDelay
	fixedUsed := 0

	for {
		err := op()
		if err == nil {
			return nil
		}

		switch classify(err) {
		case RetryFixed:
			if fixedUsed >= p.FixedRetries {
				return err
			}
			fixedUsed++
			if serr := sleep(ctx, p.FixedDelay); serr != nil {
				return fmt.Errorf("%w (interrupted: %v)", err, serr)
			}
		case RetryBackoff:
			if time.Since(start)+delay > p.Budget {
				return fmt.Errorf("retry budget %s exhausted: %w", p.Budget, err)
			}
			if serr := sleep(ctx, delay); serr != nil {
				return fmt.Errorf("%w (interrupted: %v)", err, serr)
			}
			delay *= 2
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		default:
			return err
		}
	}
}

// ClassifyHTTP is the default classifier: 504 → fixed retry; 429 and
// other 5xx → backoff; connection-level failures → backoff; everything
// else, including 404 and other 4xx, fails immediately.
func ClassifyHTTP(err error) Action {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 504:
			return RetryFixed
		case httpErr.StatusCode == 429:
			return RetryBackoff
		case httpErr.StatusCode >= 500:
			return RetryBackoff
		default:
			return Fail
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return RetryBackoff
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return RetryBackoff
	}
	return Fail
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
