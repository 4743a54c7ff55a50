// Package config loads and validates the driver configuration file.
// Configuration is an explicit immutable struct handed to the drivers;
// nothing is enriched in place after Load returns.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openlearn-labs/retirement/internal/domain"
	"github.com/openlearn-labs/retirement/internal/platform/env"
	"github.com/openlearn-labs/retirement/internal/platform/objectstore"
)

// ServiceConfig is the base address for one first-party service.
type ServiceConfig struct {
	BaseURL string `yaml:"base_url"`
}

type ClientConfig struct {
	TokenURL string `yaml:"token_url"`
	ID       string `yaml:"id"`
	Secret   string `yaml:"secret"`
}

type SegmentConfig struct {
	BaseURL     string `yaml:"base_url"`
	WorkspaceID string `yaml:"workspace_id"`
	AuthToken   string `yaml:"auth_token"`
	// MaxValuesPerRequest bounds one bulk regulation request. Zero means
	// the vendor default.
	MaxValuesPerRequest int `yaml:"max_values_per_request"`
}

type BrazeConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type AmplitudeConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	Requester string `yaml:"requester"`
}

type HubspotConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type SalesforceConfig struct {
	InstanceURL      string `yaml:"instance_url"`
	TokenURL         string `yaml:"token_url"`
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	FollowupAssignee string `yaml:"followup_assignee"`
}

type ArchiveConfig struct {
	Store     objectstore.Config `yaml:"store"`
	KeyPrefix string             `yaml:"key_prefix"`
}

type PartnerReportConfig struct {
	// OrgFolderMapping maps organization name to Google Drive folder id.
	// Every org that can appear in the report queue must be mapped.
	OrgFolderMapping map[string]string `yaml:"org_folder_mapping"`
}

type Config struct {
	PlatformName            string        `yaml:"platform_name"`
	Client                  ClientConfig  `yaml:"client"`
	FetchEcommerceSegmentID bool          `yaml:"fetch_ecommerce_segment_id"`
	Pipeline                []domain.Step `yaml:"pipeline"`

	// HTTPTimeout is the per-request timeout for every service client.
	// Environment-only (RETIREMENT_HTTP_TIMEOUT); zero keeps the client
	// default.
	HTTPTimeout time.Duration `yaml:"-"`

	LMS            ServiceConfig `yaml:"lms"`
	Ecommerce      ServiceConfig `yaml:"ecommerce"`
	Credentials    ServiceConfig `yaml:"credentials"`
	Discovery      ServiceConfig `yaml:"discovery"`
	Demographics   ServiceConfig `yaml:"demographics"`
	LicenseManager ServiceConfig `yaml:"license_manager"`

	Segment    SegmentConfig    `yaml:"segment"`
	Braze      BrazeConfig      `yaml:"braze"`
	Amplitude  AmplitudeConfig  `yaml:"amplitude"`
	Hubspot    HubspotConfig    `yaml:"hubspot"`
	Salesforce SalesforceConfig `yaml:"salesforce"`

	Archive       ArchiveConfig       `yaml:"archive"`
	PartnerReport PartnerReportConfig `yaml:"partner_report"`
}

// Load reads, decodes and validates the YAML config file. Client secrets
// may be supplied via RETIREMENT_CLIENT_ID / RETIREMENT_CLIENT_SECRET
// instead of the file; RETIREMENT_HTTP_TIMEOUT and
// RETIREMENT_SEGMENT_MAX_VALUES override their operational knobs without
// a config edit.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Client.ID = env.String("RETIREMENT_CLIENT_ID", cfg.Client.ID)
	cfg.Client.Secret = env.String("RETIREMENT_CLIENT_SECRET", cfg.Client.Secret)
	cfg.HTTPTimeout, err = env.Duration("RETIREMENT_HTTP_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	cfg.Segment.MaxValuesPerRequest, err = env.Int("RETIREMENT_SEGMENT_MAX_VALUES", cfg.Segment.MaxValuesPerRequest)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.PlatformName) == "" {
		return fmt.Errorf("platform_name is required")
	}
	if strings.TrimSpace(c.Client.TokenURL) == "" {
		return fmt.Errorf("client.token_url is required")
	}
	if strings.TrimSpace(c.Client.ID) == "" || strings.TrimSpace(c.Client.Secret) == "" {
		return fmt.Errorf("client credentials are required (config or RETIREMENT_CLIENT_* env)")
	}
	if strings.TrimSpace(c.LMS.BaseURL) == "" {
		return fmt.Errorf("lms.base_url is required")
	}
	if c.FetchEcommerceSegmentID && strings.TrimSpace(c.Ecommerce.BaseURL) == "" {
		return fmt.Errorf("fetch_ecommerce_segment_id requires ecommerce.base_url")
	}
	return nil
}

// BuildPipeline materializes the configured steps into an ordered
// pipeline, validating state uniqueness and step completeness.
func (c *Config) BuildPipeline() (*domain.Pipeline, error) {
	return domain.NewPipeline(c.Pipeline)
}
