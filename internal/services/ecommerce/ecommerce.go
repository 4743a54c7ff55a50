// Package ecommerce retires a learner's order history and exposes the
// Segment tracking id lookup used to enrich records before a run.
package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/openlearn-labs/retirement/internal/domain"
	"github.com/openlearn-labs/retirement/internal/platform/restclient"
)

type Client struct {
	rest *restclient.Client
	base string
}

func New(baseURL string, rest *restclient.Client) *Client {
	return &Client{rest: rest, base: strings.TrimRight(baseURL, "/")}
}

func (c *Client) Operations() map[string]domain.StepFunc {
	return map[string]domain.StepFunc{
		"retire": c.Retire,
	}
}

func (c *Client) Retire(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	body := map[string]any{"username": learner.OriginalUsername}
	err := c.rest.Execute(ctx, http.MethodPost, c.base+"/api/v2/user/retire/", body, nil)
	if errors.Is(err, restclient.ErrNotFound) {
		return domain.AlreadyAbsent("no ecommerce account"), nil
	}
	if err != nil {
		return domain.StepOutcome{}, err
	}
	return domain.Completed("ecommerce retired"), nil
}

// TrackingID returns the learner's ecommerce Segment id, or "" when the
// learner has no ecommerce account.
func (c *Client) TrackingID(ctx context.Context, learner *domain.LearnerRecord) (string, error) {
	u := fmt.Sprintf("%s/api/v2/user/tracking_id/?username=%s", c.base, url.QueryEscape(learner.OriginalUsername))
	var out struct {
		EcommerceTrackingID string `json:"ecommerce_tracking_id"`
	}
	err := c.rest.Execute(ctx, http.MethodGet, u, nil, &out)
	if errors.Is(err, restclient.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch tracking id: %w", err)
	}
	return out.EcommerceTrackingID, nil
}
