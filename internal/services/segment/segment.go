// Package segment submits bulk regulation (suppress-with-delete)
// requests. Segment limits and bills per bulk request, so learners are
// batched up to the per-request value limit; a caller that exceeds the
// limit is rejected outright, never silently truncated.
package segment

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openlearn-labs/retirement/internal/domain"
	"github.com/openlearn-labs/retirement/internal/platform/restclient"
)

// DefaultMaxValuesPerRequest is Segment's documented per-request bound
// on regulation values.
const DefaultMaxValuesPerRequest = 16000

// BatchTooLargeError reports a rejected oversized regulation request.
type BatchTooLargeError struct {
	Values int
	Limit  int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("segment regulation request has %d values, limit is %d", e.Values, e.Limit)
}

type Client struct {
	rest        *restclient.Client
	base        string
	workspaceID string
	maxValues   int
}

func New(baseURL, workspaceID string, maxValues int, rest *restclient.Client) *Client {
	if maxValues <= 0 {
		maxValues = DefaultMaxValuesPerRequest
	}
	return &Client{
		rest:        rest,
		base:        strings.TrimRight(baseURL, "/"),
		workspaceID: workspaceID,
		maxValues:   maxValues,
	}
}

func (c *Client) Operations() map[string]domain.StepFunc {
	return map[string]domain.StepFunc{
		"retire": c.Retire,
	}
}

// Retire suppresses and deletes one learner as a single-value bulk call.
func (c *Client) Retire(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	if err := c.DeleteAndSuppress(ctx, []domain.LearnerRecord{*learner}); err != nil {
		return domain.StepOutcome{}, err
	}
	return domain.Completed("segment regulation submitted"), nil
}

// DeleteAndSuppress submits one Suppress_With_Delete regulation covering
// every id the given learners are known by (LMS user id and ecommerce
// tracking id when present).
func (c *Client) DeleteAndSuppress(ctx context.Context, learners []domain.LearnerRecord) error {
	if len(learners) == 0 {
		return nil
	}

	values := make([]string, 0, 2*len(learners))
	for _, learner := range learners {
		values = append(values, fmt.Sprintf("%d", learner.UserID))
		if learner.EcommerceSegmentID != "" {
			values = append(values, learner.EcommerceSegmentID)
		}
	}
	if len(values) > c.maxValues {
		return &BatchTooLargeError{Values: len(values), Limit: c.maxValues}
	}

	body := map[string]any{
		"regulation_type": "Suppress_With_Delete",
		"attributes": map[string]any{
			"name":   "userId",
			"values": values,
		},
	}
	u := fmt.Sprintf("%s/v1beta/workspaces/%s/regulations", c.base, c.workspaceID)
	if err := c.rest.Execute(ctx, http.MethodPost, u, body, nil); err != nil {
		return fmt.Errorf("submit segment regulation (%d values): %w", len(values), err)
	}
	return nil
}
