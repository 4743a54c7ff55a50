package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
platform_name: openlearn
client:
  token_url: https://lms.example.com/oauth2/access_token
  id: retirement-worker
  secret: shhh
fetch_ecommerce_segment_id: true
pipeline:
  - start_state: RETIRING_FORUMS
    end_state: FORUMS_COMPLETE
    service: lms
    operation: retire_forum
  - start_state: RETIRING_LMS
    end_state: LMS_COMPLETE
    service: lms
    operation: lms_retire
lms:
  base_url: https://lms.example.com
ecommerce:
  base_url: https://ecommerce.example.com
segment:
  base_url: https://platform.segmentapis.com
  workspace_id: ws-1
  auth_token: seg-token
  max_values_per_request: 5000
archive:
  key_prefix: retirements
  store:
    endpoint: minio.example.com:9000
    access_key: archiver
    secret_key: shhh
    bucket: retirement-archive
partner_report:
  org_folder_mapping:
    MITx: folder-mit
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PlatformName != "openlearn" {
		t.Errorf("platform_name = %q", cfg.PlatformName)
	}
	if cfg.LMS.BaseURL != "https://lms.example.com" {
		t.Errorf("lms.base_url = %q", cfg.LMS.BaseURL)
	}
	if !cfg.FetchEcommerceSegmentID {
		t.Error("fetch_ecommerce_segment_id not decoded")
	}
	if cfg.Segment.MaxValuesPerRequest != 5000 {
		t.Errorf("segment.max_values_per_request = %d", cfg.Segment.MaxValuesPerRequest)
	}
	if cfg.PartnerReport.OrgFolderMapping["MITx"] != "folder-mit" {
		t.Errorf("org_folder_mapping = %v", cfg.PartnerReport.OrgFolderMapping)
	}
	if len(cfg.Pipeline) != 2 {
		t.Fatalf("pipeline steps = %d, want 2", len(cfg.Pipeline))
	}
	if cfg.Pipeline[0].Operation != "retire_forum" {
		t.Errorf("first step = %+v", cfg.Pipeline[0])
	}
}

func TestLoadEnvOverridesClientCredentials(t *testing.T) {
	t.Setenv("RETIREMENT_CLIENT_ID", "env-id")
	t.Setenv("RETIREMENT_CLIENT_SECRET", "env-secret")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.ID != "env-id" || cfg.Client.Secret != "env-secret" {
		t.Errorf("client = %+v, want env values", cfg.Client)
	}
}

func TestLoadEnvOverridesOperationalKnobs(t *testing.T) {
	t.Setenv("RETIREMENT_HTTP_TIMEOUT", "90s")
	t.Setenv("RETIREMENT_SEGMENT_MAX_VALUES", "123")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPTimeout != 90*time.Second {
		t.Errorf("HTTPTimeout = %v, want 90s", cfg.HTTPTimeout)
	}
	if cfg.Segment.MaxValuesPerRequest != 123 {
		t.Errorf("segment.max_values_per_request = %d, want env override 123", cfg.Segment.MaxValuesPerRequest)
	}
}

func TestLoadRejectsBadEnvOverrides(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad timeout", "RETIREMENT_HTTP_TIMEOUT", "ninety"},
		{"bad max values", "RETIREMENT_SEGMENT_MAX_VALUES", "lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(writeConfig(t, validConfig))
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Fatalf("err = %v, want mention of %s", err, tt.key)
			}
		})
	}
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		name    string
		drop    string
		wantErr string
	}{
		{"no platform name", "platform_name: openlearn", "platform_name"},
		{"no token url", "token_url: https://lms.example.com/oauth2/access_token", "token_url"},
		{"no client secret", "secret: shhh", "client credentials"},
		{"no lms url", "base_url: https://lms.example.com", "lms.base_url"},
		{"enrichment without ecommerce", "base_url: https://ecommerce.example.com", "fetch_ecommerce_segment_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := strings.Replace(validConfig, tt.drop, "", 1)
			_, err := Load(writeConfig(t, content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildPipeline(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pipe, err := cfg.BuildPipeline()
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	if got := len(pipe.Steps()); got != 2 {
		t.Errorf("steps = %d, want 2", got)
	}
	if _, ok := pipe.ExecutionOrder("FORUMS_COMPLETE"); !ok {
		t.Error("FORUMS_COMPLETE missing from execution order")
	}
}
