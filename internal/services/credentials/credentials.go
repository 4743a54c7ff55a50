// Package credentials retires a learner from the credentials service.
package credentials

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
	err := c.rest.Execute(ctx, http.MethodPost, c.base+"/user/retire/", body, nil)
	if errors.Is(err, restclient.ErrNotFound) {
		return domain.AlreadyAbsent("no credentials issued"), nil
	}
	if err != nil {
		return domain.StepOutcome{}, err
	}
	return domain.Completed("credentials retired"), nil
}
