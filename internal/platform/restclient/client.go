package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Config selects one of three auth modes for a client:
//
//   - client credentials, when TokenURL is set (the platform services);
//   - a static bearer token, when BearerToken is set (Segment, Braze,
//     Hubspot);
//   - basic auth, when BasicUser is set (Amplitude).
//
// With none of these set the client sends unauthenticated requests.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string

	BearerToken string

	BasicUser string
	BasicPass string

	// Timeout applies per underlying HTTP request. Zero means 60s.
	Timeout time.Duration
}

func (c Config) validate() error {
	modes := 0
	if c.TokenURL != "" {
		if c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("client_id and client_secret are required with token_url")
		}
		modes++
	}
	if c.BearerToken != "" {
		modes++
	}
	if c.BasicUser != "" {
		modes++
	}
	if modes > 1 {
		return fmt.Errorf("only one auth mode may be configured")
	}
	return nil
}

// Client executes JSON requests against one service with a single retry
// policy. When configured for client credentials it obtains one bearer
// token on first use and pins it for its lifetime; a process-level retry
// re-authenticates.
type Client struct {
	cfg    Config
	http   *http.Client
	policy Policy

	mu    sync.Mutex
	token string
}

func New(cfg Config, policy Policy) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(),
		},
		policy: policy,
	}, nil
}

// Execute performs one logical request under the retry policy. body, when
// non-nil, is JSON-encoded; out, when non-nil, receives the decoded
// response body.
func (c *Client) Execute(ctx context.Context, method, url string, body any, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	return c.policy.Do(ctx, func() error {
		return c.once(ctx, method, url, payload, out)
	})
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        url,
			Body:       errorBody(raw),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	switch {
	case c.cfg.TokenURL != "":
		token, err := c.bearerToken(ctx)
		if err != nil {
			return fmt.Errorf("acquire token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case c.cfg.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	case c.cfg.BasicUser != "":
		req.SetBasicAuth(c.cfg.BasicUser, c.cfg.BasicPass)
	}
	return nil
}

func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	grant := clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.TokenURL,
	}
	token, err := grant.TokenSource(ctx).Token()
	if err != nil {
		return "", err
	}
	c.token = token.AccessToken
	return c.token, nil
}

// errorBody extracts a readable message from an error response. JSON
// bodies are kept compact; anything else is truncated raw text.
func errorBody(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	if json.Valid(trimmed) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err == nil {
			return truncate(compact.String(), 2048)
		}
	}
	return truncate(string(trimmed), 2048)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "…"
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
