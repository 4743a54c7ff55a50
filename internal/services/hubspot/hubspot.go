// Package hubspot performs a GDPR contact delete by email. Hubspot's
// "contact not found" is success: there was nothing to erase.
package hubspot

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
	body := map[string]any{
		"idProperty": "email",
		"objectId":   learner.OriginalEmail,
	}
	err := c.rest.Execute(ctx, http.MethodPost, c.base+"/crm/v3/objects/contacts/gdpr-delete", body, nil)
	if errors.Is(err, restclient.ErrNotFound) {
		return domain.AlreadyAbsent("no hubspot contact"), nil
	}
	if err != nil {
		var httpErr *restclient.HTTPError
		// Hubspot also reports unknown contacts as a 400 with a
		// CONTACT_NOT_FOUND category in the body.
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusBadRequest &&
			strings.Contains(httpErr.Body, "CONTACT_NOT_FOUND") {
			return domain.AlreadyAbsent("no hubspot contact"), nil
		}
		return domain.StepOutcome{}, err
	}
	return domain.Completed("hubspot contact deleted"), nil
}
