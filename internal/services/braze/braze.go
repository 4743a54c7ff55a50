// Package braze deletes a learner's Braze profile by external id.
package braze

import (
	"context"
	"errors"
	"net/http"
	"strconv"
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
	body := map[string]any{
		"external_ids": []string{strconv.FormatInt(learner.UserID, 10)},
	}
	err := c.rest.Execute(ctx, http.MethodPost, c.base+"/users/delete", body, nil)
	if errors.Is(err, restclient.ErrNotFound) {
		// Braze reports unknown profiles as 404; nothing to delete.
		return domain.AlreadyAbsent("no braze profile"), nil
	}
	if err != nil {
		return domain.StepOutcome{}, err
	}
	return domain.Completed("braze profile deleted"), nil
}
