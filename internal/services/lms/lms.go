// Package lms is the adapter for the LMS user API. Besides the pipeline
// retirement operations it carries the queue-query and state-transition
// endpoints the state machine and batch drivers depend on: the LMS is the
// sole durable store for learner retirement state.
package lms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openlearn-labs/retirement/internal/domain"
	"github.com/openlearn-labs/retirement/internal/platform/restclient"
)

const dateFormat = "2006-01-02"

type Client struct {
	rest   *restclient.Client
	base   string
	logger *slog.Logger
}

func New(baseURL string, rest *restclient.Client, logger *slog.Logger) *Client {
	return &Client{
		rest:   rest,
		base:   strings.TrimRight(baseURL, "/"),
		logger: logger,
	}
}

// --- state store operations (used by the state machine, not by steps) ---

// GetLearner fetches the retirement record for one learner.
func (c *Client) GetLearner(ctx context.Context, username string) (*domain.LearnerRecord, error) {
	var record domain.LearnerRecord
	u := fmt.Sprintf("%s/api/user/v1/accounts/%s/retirement_status/", c.base, url.PathEscape(username))
	if err := c.rest.Execute(ctx, http.MethodGet, u, nil, &record); err != nil {
		return nil, fmt.Errorf("get retirement status for %s: %w", username, err)
	}
	return &record, nil
}

// SetState durably transitions a learner to a new state. force bypasses
// the LMS's forward-only transition check and is only used by the
// administrative bulk updater.
func (c *Client) SetState(ctx context.Context, learner *domain.LearnerRecord, state, message string, force bool) error {
	body := map[string]any{
		"username":  learner.OriginalUsername,
		"new_state": state,
		"response":  message,
	}
	if force {
		body["force"] = true
	}
	u := c.base + "/api/user/v1/accounts/update_retirement_status/"
	if err := c.rest.Execute(ctx, http.MethodPatch, u, body, nil); err != nil {
		return fmt.Errorf("transition %s to %s: %w", learner.OriginalUsername, state, err)
	}
	return nil
}

// LearnersByStates returns learners sitting in any of the given states
// whose request is older than coolOffDays.
func (c *Client) LearnersByStates(ctx context.Context, states []string, coolOffDays int) ([]domain.LearnerRecord, error) {
	q := url.Values{}
	q.Set("cool_off_days", strconv.Itoa(coolOffDays))
	q.Set("states", strings.Join(states, ","))
	u := c.base + "/api/user/v1/accounts/retirement_queue/?" + q.Encode()

	var learners []domain.LearnerRecord
	if err := c.rest.Execute(ctx, http.MethodGet, u, nil, &learners); err != nil {
		return nil, fmt.Errorf("query retirement queue: %w", err)
	}
	return learners, nil
}

// LearnersByDateRange returns learners in one state created inside the
// inclusive date window.
func (c *Client) LearnersByDateRange(ctx context.Context, state string, start, end time.Time) ([]domain.LearnerRecord, error) {
	q := url.Values{}
	q.Set("state", state)
	q.Set("start_date", start.Format(dateFormat))
	q.Set("end_date", end.Format(dateFormat))
	u := c.base + "/api/user/v1/accounts/retirements_by_status_and_date/?" + q.Encode()

	var learners []domain.LearnerRecord
	if err := c.rest.Execute(ctx, http.MethodGet, u, nil, &learners); err != nil {
		return nil, fmt.Errorf("query retirements by date: %w", err)
	}
	return learners, nil
}

// BulkCleanup permanently deletes the retirement records for the given
// usernames. Only call this after their archives are confirmed uploaded.
func (c *Client) BulkCleanup(ctx context.Context, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	u := c.base + "/api/user/v1/accounts/retirement_cleanup/"
	body := map[string]any{"usernames": usernames}
	if err := c.rest.Execute(ctx, http.MethodPost, u, body, nil); err != nil {
		return fmt.Errorf("cleanup %d retirements: %w", len(usernames), err)
	}
	return nil
}

// UsernamePair maps a current username to its replacement.
type UsernamePair struct {
	Current string
	Desired string
}

// ReplacementResult reports the LMS's per-username outcome of a bulk
// username replacement.
type ReplacementResult struct {
	Successful []string `json:"successful_replacements"`
	Failed     []string `json:"failed_replacements"`
}

// ReplaceUsernames submits one bulk username replacement chunk.
func (c *Client) ReplaceUsernames(ctx context.Context, pairs []UsernamePair) (*ReplacementResult, error) {
	mappings := make([]map[string]string, 0, len(pairs))
	for _, p := range pairs {
		mappings = append(mappings, map[string]string{p.Current: p.Desired})
	}
	u := c.base + "/api/user/v1/accounts/replace_usernames/"
	var result ReplacementResult
	if err := c.rest.Execute(ctx, http.MethodPost, u, map[string]any{"username_mappings": mappings}, &result); err != nil {
		return nil, fmt.Errorf("replace usernames: %w", err)
	}
	return &result, nil
}

// PartnerReportQueue returns the learners pending partner notification.
func (c *Client) PartnerReportQueue(ctx context.Context) ([]domain.ReportLearner, error) {
	u := c.base + "/api/user/v1/accounts/retirement_partner_report/"
	var learners []domain.ReportLearner
	if err := c.rest.Execute(ctx, http.MethodGet, u, nil, &learners); err != nil {
		return nil, fmt.Errorf("query partner report queue: %w", err)
	}
	return learners, nil
}

// CleanupPartnerReportQueue clears reported learners from the queue.
func (c *Client) CleanupPartnerReportQueue(ctx context.Context, learners []domain.ReportLearner) error {
	if len(learners) == 0 {
		return nil
	}
	usernames := make([]map[string]string, 0, len(learners))
	for _, l := range learners {
		usernames = append(usernames, map[string]string{"original_username": l.OriginalUsername})
	}
	u := c.base + "/api/user/v1/accounts/retirement_partner_report_cleanup/"
	if err := c.rest.Execute(ctx, http.MethodPut, u, usernames, nil); err != nil {
		return fmt.Errorf("cleanup partner report queue: %w", err)
	}
	return nil
}

// --- pipeline operations ---

// Operations returns the named step operations this adapter contributes
// to the pipeline registry.
func (c *Client) Operations() map[string]domain.StepFunc {
	return map[string]domain.StepFunc{
		"retire_forum":              c.RetireForum,
		"retire_proctoring":         c.RetireProctoring,
		"retire_proctoring_backend": c.RetireProctoringBackend,
		"unenroll":                  c.Unenroll,
		"lms_retire_misc":           c.RetireMisc,
		"lms_retire":                c.RetireLMS,
	}
}

func (c *Client) RetireForum(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	return c.retirePost(ctx, "/api/discussion/v1/accounts/retire_forum/", learner)
}

func (c *Client) RetireProctoring(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	return c.retirePost(ctx, "/api/proctoring/v1/retire_user/", learner)
}

func (c *Client) RetireProctoringBackend(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	return c.retirePost(ctx, "/api/proctoring/v1/retire_backend_user/", learner)
}

func (c *Client) Unenroll(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	return c.retirePost(ctx, "/api/enrollment/v1/unenroll/", learner)
}

func (c *Client) RetireMisc(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	return c.retirePost(ctx, "/api/user/v1/accounts/retire_misc/", learner)
}

// RetireLMS is the final LMS PII scrub; it anonymizes the account itself.
func (c *Client) RetireLMS(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	return c.retirePost(ctx, "/api/user/v1/accounts/retire/", learner)
}

// retirePost posts the learner's username to a retirement endpoint. A 404
// means the service holds nothing for this learner, which is success for
// an idempotent delete.
func (c *Client) retirePost(ctx context.Context, path string, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	body := map[string]any{"username": learner.OriginalUsername}
	err := c.rest.Execute(ctx, http.MethodPost, c.base+path, body, nil)
	if errors.Is(err, restclient.ErrNotFound) {
		return domain.AlreadyAbsent(path), nil
	}
	if err != nil {
		return domain.StepOutcome{}, err
	}
	return domain.Completed(path), nil
}
