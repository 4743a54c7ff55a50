// Package amplitude schedules a learner's deletion through Amplitude's
// User Privacy API.
package amplitude

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openlearn-labs/retirement/internal/domain"
	"github.com/openlearn-labs/retirement/internal/platform/restclient"
)

type Client struct {
	rest      *restclient.Client
	base      string
	requester string
}

func New(baseURL, requester string, rest *restclient.Client) *Client {
	return &Client{
		rest:      rest,
		base:      strings.TrimRight(baseURL, "/"),
		requester: requester,
	}
}

func (c *Client) Operations() map[string]domain.StepFunc {
	return map[string]domain.StepFunc{
		"retire": c.Retire,
	}
}

func (c *Client) Retire(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	body := map[string]any{
		"user_ids":         []int64{learner.UserID},
		"requester":        c.requester,
		"ignore_invalid_id": "true",
	}
	err := c.rest.Execute(ctx, http.MethodPost, c.base+"/api/2/deletions/users", body, nil)
	if errors.Is(err, restclient.ErrNotFound) {
		return domain.AlreadyAbsent("no amplitude user"), nil
	}
	if err != nil {
		return domain.StepOutcome{}, err
	}
	return domain.Completed("amplitude deletion scheduled"), nil
}
