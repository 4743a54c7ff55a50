// Package licensemanager retires a learner's subscription license data.
package licensemanager

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
	body := map[string]any{"lms_user_id": learner.UserID, "original_username": learner.OriginalUsername}
	err := c.rest.Execute(ctx, http.MethodPost, c.base+"/api/v1/retire_user/", body, nil)
	if errors.Is(err, restclient.ErrNotFound) {
		return domain.AlreadyAbsent("no license data"), nil
	}
	if err != nil {
		return domain.StepOutcome{}, err
	}
	return domain.Completed("licenses retired"), nil
}
