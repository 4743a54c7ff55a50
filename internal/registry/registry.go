// Package registry builds the per-service adapters from configuration
// and resolves pipeline steps to concrete operations. Resolution happens
// once, up front: a pipeline that names an unknown service or operation
// fails before any learner is touched.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/openlearn-labs/retirement/internal/config"
	"github.com/openlearn-labs/retirement/internal/domain"
	"github.com/openlearn-labs/retirement/internal/platform/restclient"
	"github.com/openlearn-labs/retirement/internal/services/amplitude"
	"github.com/openlearn-labs/retirement/internal/services/braze"
	"github.com/openlearn-labs/retirement/internal/services/credentials"
	"github.com/openlearn-labs/retirement/internal/services/demographics"
	"github.com/openlearn-labs/retirement/internal/services/discovery"
	"github.com/openlearn-labs/retirement/internal/services/ecommerce"
	"github.com/openlearn-labs/retirement/internal/services/hubspot"
	"github.com/openlearn-labs/retirement/internal/services/licensemanager"
	"github.com/openlearn-labs/retirement/internal/services/lms"
	"github.com/openlearn-labs/retirement/internal/services/salesforce"
	"github.com/openlearn-labs/retirement/internal/services/segment"
)

// Adapters holds the constructed service adapters. Only services with
// configuration present are built; a pipeline step naming an absent
// service fails resolution.
type Adapters struct {
	LMS       *lms.Client
	Ecommerce *ecommerce.Client

	operations map[string]map[string]domain.StepFunc
}

// Build constructs adapters for every configured service.
func Build(cfg *config.Config, logger *slog.Logger) (*Adapters, error) {
	a := &Adapters{operations: make(map[string]map[string]domain.StepFunc)}
	policy := restclient.DefaultPolicy()

	platformClient := func() (*restclient.Client, error) {
		return restclient.New(restclient.Config{
			TokenURL:     cfg.Client.TokenURL,
			ClientID:     cfg.Client.ID,
			ClientSecret: cfg.Client.Secret,
			Timeout:      cfg.HTTPTimeout,
		}, policy)
	}

	rest, err := platformClient()
	if err != nil {
		return nil, fmt.Errorf("lms client: %w", err)
	}
	a.LMS = lms.New(cfg.LMS.BaseURL, rest, logger)
	a.operations["lms"] = a.LMS.Operations()

	if cfg.Ecommerce.BaseURL != "" {
		rest, err := platformClient()
		if err != nil {
			return nil, fmt.Errorf("ecommerce client: %w", err)
		}
		a.Ecommerce = ecommerce.New(cfg.Ecommerce.BaseURL, rest)
		a.operations["ecommerce"] = a.Ecommerce.Operations()
	}
	if cfg.Credentials.BaseURL != "" {
		rest, err := platformClient()
		if err != nil {
			return nil, fmt.Errorf("credentials client: %w", err)
		}
		a.operations["credentials"] = credentials.New(cfg.Credentials.BaseURL, rest).Operations()
	}
	if cfg.Discovery.BaseURL != "" {
		rest, err := platformClient()
		if err != nil {
			return nil, fmt.Errorf("discovery client: %w", err)
		}
		a.operations["discovery"] = discovery.New(cfg.Discovery.BaseURL, rest).Operations()
	}
	if cfg.Demographics.BaseURL != "" {
		rest, err := platformClient()
		if err != nil {
			return nil, fmt.Errorf("demographics client: %w", err)
		}
		a.operations["demographics"] = demographics.New(cfg.Demographics.BaseURL, rest).Operations()
	}
	if cfg.LicenseManager.BaseURL != "" {
		rest, err := platformClient()
		if err != nil {
			return nil, fmt.Errorf("license manager client: %w", err)
		}
		a.operations["license_manager"] = licensemanager.New(cfg.LicenseManager.BaseURL, rest).Operations()
	}

	if cfg.Segment.BaseURL != "" {
		rest, err := restclient.New(restclient.Config{BearerToken: cfg.Segment.AuthToken, Timeout: cfg.HTTPTimeout}, policy)
		if err != nil {
			return nil, fmt.Errorf("segment client: %w", err)
		}
		a.operations["segment"] = segment.New(cfg.Segment.BaseURL, cfg.Segment.WorkspaceID, cfg.Segment.MaxValuesPerRequest, rest).Operations()
	}
	if cfg.Braze.BaseURL != "" {
		rest, err := restclient.New(restclient.Config{BearerToken: cfg.Braze.APIKey, Timeout: cfg.HTTPTimeout}, policy)
		if err != nil {
			return nil, fmt.Errorf("braze client: %w", err)
		}
		a.operations["braze"] = braze.New(cfg.Braze.BaseURL, rest).Operations()
	}
	if cfg.Amplitude.BaseURL != "" {
		rest, err := restclient.New(restclient.Config{
			BasicUser: cfg.Amplitude.APIKey,
			BasicPass: cfg.Amplitude.SecretKey,
			Timeout:   cfg.HTTPTimeout,
		}, policy)
		if err != nil {
			return nil, fmt.Errorf("amplitude client: %w", err)
		}
		a.operations["amplitude"] = amplitude.New(cfg.Amplitude.BaseURL, cfg.Amplitude.Requester, rest).Operations()
	}
	if cfg.Hubspot.BaseURL != "" {
		rest, err := restclient.New(restclient.Config{BearerToken: cfg.Hubspot.APIKey, Timeout: cfg.HTTPTimeout}, policy)
		if err != nil {
			return nil, fmt.Errorf("hubspot client: %w", err)
		}
		a.operations["hubspot"] = hubspot.New(cfg.Hubspot.BaseURL, rest).Operations()
	}
	if cfg.Salesforce.InstanceURL != "" {
		rest, err := restclient.New(restclient.Config{
			TokenURL:     cfg.Salesforce.TokenURL,
			ClientID:     cfg.Salesforce.ClientID,
			ClientSecret: cfg.Salesforce.ClientSecret,
			Timeout:      cfg.HTTPTimeout,
		}, policy)
		if err != nil {
			return nil, fmt.Errorf("salesforce client: %w", err)
		}
		a.operations["salesforce"] = salesforce.New(cfg.Salesforce.InstanceURL, cfg.Salesforce.FollowupAssignee, rest).Operations()
	}

	return a, nil
}

// Resolve returns the registered operation for a (service, operation)
// pair.
func (a *Adapters) Resolve(service, operation string) (domain.StepFunc, error) {
	ops, ok := a.operations[service]
	if !ok {
		return nil, fmt.Errorf("service %q is not configured", service)
	}
	fn, ok := ops[operation]
	if !ok {
		return nil, fmt.Errorf("service %q has no operation %q", service, operation)
	}
	return fn, nil
}

// ResolvedStep is a pipeline step bound to its adapter operation.
type ResolvedStep struct {
	domain.Step
	Fn domain.StepFunc
}

// ResolveSteps binds every pipeline step, failing on the first unknown
// name.
func (a *Adapters) ResolveSteps(p *domain.Pipeline) ([]ResolvedStep, error) {
	steps := p.Steps()
	resolved := make([]ResolvedStep, 0, len(steps))
	for _, step := range steps {
		fn, err := a.Resolve(step.Service, step.Operation)
		if err != nil {
			return nil, fmt.Errorf("pipeline step %s→%s: %w", step.StartState, step.EndState, err)
		}
		resolved = append(resolved, ResolvedStep{Step: step, Fn: fn})
	}
	return resolved, nil
}

// Register adds or overrides a service's operations. Tests use this to
// substitute fakes.
func (a *Adapters) Register(service string, ops map[string]domain.StepFunc) {
	if a.operations == nil {
		a.operations = make(map[string]map[string]domain.StepFunc)
	}
	a.operations[service] = ops
}
