// Package salesforce handles retirement follow-up for Salesforce leads.
// Leads are never deleted automatically: they may be tied to contracts or
// open opportunities that need human judgment, so the adapter resolves
// the learner's email to a lead and files a follow-up task instead.
package salesforce

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

const apiVersion = "v54.0"

type Client struct {
	rest     *restclient.Client
	base     string
	assignee string
}

func New(instanceURL, assignee string, rest *restclient.Client) *Client {
	return &Client{
		rest:     rest,
		base:     strings.TrimRight(instanceURL, "/"),
		assignee: assignee,
	}
}

func (c *Client) Operations() map[string]domain.StepFunc {
	return map[string]domain.StepFunc{
		"retire": c.Retire,
	}
}

func (c *Client) Retire(ctx context.Context, learner *domain.LearnerRecord) (domain.StepOutcome, error) {
	leadID, err := c.leadIDByEmail(ctx, learner.OriginalEmail)
	if err != nil {
		return domain.StepOutcome{}, err
	}
	if leadID == "" {
		return domain.AlreadyAbsent("no salesforce lead"), nil
	}
	if err := c.createFollowupTask(ctx, leadID, learner); err != nil {
		return domain.StepOutcome{}, err
	}
	return domain.Completed("follow-up task created for lead " + leadID), nil
}

func (c *Client) leadIDByEmail(ctx context.Context, email string) (string, error) {
	soql := fmt.Sprintf("SELECT Id FROM Lead WHERE Email = '%s'", escapeSOQL(email))
	u := fmt.Sprintf("%s/services/data/%s/query?q=%s", c.base, apiVersion, url.QueryEscape(soql))

	var out struct {
		TotalSize int `json:"totalSize"`
		Records   []struct {
			ID string `json:"Id"`
		} `json:"records"`
	}
	err := c.rest.Execute(ctx, http.MethodGet, u, nil, &out)
	if errors.Is(err, restclient.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lead lookup: %w", err)
	}
	if out.TotalSize == 0 || len(out.Records) == 0 {
		return "", nil
	}
	return out.Records[0].ID, nil
}

func (c *Client) createFollowupTask(ctx context.Context, leadID string, learner *domain.LearnerRecord) error {
	body := map[string]any{
		"WhoId":       leadID,
		"OwnerId":     c.assignee,
		"Subject":     "GDPR retirement: manual lead review required",
		"Description": fmt.Sprintf("Learner %s (user id %d) requested retirement. Review and erase this lead manually.", learner.OriginalUsername, learner.UserID),
	}
	u := fmt.Sprintf("%s/services/data/%s/sobjects/Task", c.base, apiVersion)
	if err := c.rest.Execute(ctx, http.MethodPost, u, body, nil); err != nil {
		return fmt.Errorf("create follow-up task: %w", err)
	}
	return nil
}

// escapeSOQL escapes the quote and backslash characters in a SOQL string
// literal.
func escapeSOQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
