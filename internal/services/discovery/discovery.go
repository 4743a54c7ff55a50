// Package discovery retires a learner's personal data from the course
// discovery service.
package discovery

import (
	"context"
	"errors"
	"net/http"
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
	err := c.rest.Execute(ctx, http.MethodPost, c.base+"/api/v1/retire/", body, nil)
	if errors.Is(err, restclient.ErrNotFound) {
		return domain.AlreadyAbsent("no discovery data"), nil
	}
	if err != nil {
		return domain.StepOutcome{}, err
	}
	return domain.Completed("discovery retired"), nil
}
