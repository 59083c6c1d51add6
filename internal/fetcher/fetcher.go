// Package fetcher retrieves an account's current name from the external
// profile endpoint.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/roach88/namehist/internal/history"
	"github.com/roach88/namehist/internal/metrics"
)

// DefaultBaseURL is the public session server profile endpoint.
const DefaultBaseURL = "https://sessionserver.mojang.com/session/minecraft/profile/"

// Defaults applied by Config.withDefaults.
const (
	DefaultTimeout  = 5 * time.Second
	DefaultPoolSize = 8
)

// maxBodyBytes caps how much of a profile response is read.
const maxBodyBytes = 1 << 20

// Config holds the parameters of a Client.
type Config struct {
	// BaseURL is prefixed to the dashless identifier.
	BaseURL string

	// Timeout bounds one fetch, including the wait for a rate-limit token.
	Timeout time.Duration

	// PoolSize is the number of idle connections kept per host.
	PoolSize int

	// UserAgent is sent when non-empty.
	UserAgent string

	// ProxyURL routes requests through an HTTP proxy when non-empty.
	// Credentials in the URL userinfo are sent as basic proxy auth.
	ProxyURL string

	// RateLimit is the sustained request rate per second; 0 disables limiting.
	RateLimit float64

	// RateBurst is the limiter bucket size.
	RateBurst int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	return c
}

// Profile is the subset of the profile document the service reads.
type Profile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
}

// Property is a signed profile property. Value and Signature arrive
// base64-encoded and are decoded by encoding/json.
type Property struct {
	Name      string `json:"name"`
	Value     []byte `json:"value"`
	Signature []byte `json:"signature,omitempty"`
}

// Client fetches profiles over HTTP. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from Config.
// Tests use it to talk to httptest servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithMetrics records fetch results and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New builds a Client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}

	c := &Client{cfg: cfg}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		transport, err := buildTransport(cfg)
		if err != nil {
			return nil, err
		}
		c.http = &http.Client{Transport: transport}
	}

	return c, nil
}

func buildTransport(cfg Config) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.PoolSize
	transport.IdleConnTimeout = 90 * time.Second

	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", cfg.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	return transport, nil
}

// FetchCurrentName returns the current name of id.
//
// Failures are *history.Error values:
//   - KindFetchUnavailable for any non-200 status (Status carries the code)
//   - KindFetchTransport when no usable response arrived in time
//   - KindFetchMalformed when the body is not a profile or the name is empty
func (c *Client) FetchCurrentName(ctx context.Context, id uuid.UUID) (string, error) {
	start := time.Now()
	profile, err := c.FetchProfile(ctx, id)
	c.metrics.ObserveFetchLatency(time.Since(start))
	if err != nil {
		result := "error"
		if kind, ok := history.KindOf(err); ok {
			result = string(kind)
		}
		c.metrics.IncrementFetch(result)
		return "", err
	}
	c.metrics.IncrementFetch("ok")
	return profile.Name, nil
}

// FetchProfile returns the decoded profile document of id.
func (c *Client) FetchProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, history.NewTransport("wait for rate limit", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL(id), nil)
	if err != nil {
		return nil, history.NewTransport("build profile request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, history.NewTransport("request profile", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, history.NewUnavailable(resp.StatusCode,
			fmt.Sprintf("profile source returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, history.NewTransport("read profile body", err)
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, history.NewMalformed("decode profile", err)
	}
	if profile.Name == "" {
		return nil, history.NewMalformed("decode profile", errors.New("profile has no name"))
	}
	return &profile, nil
}

func (c *Client) profileURL(id uuid.UUID) string {
	return c.cfg.BaseURL + strings.ReplaceAll(id.String(), "-", "")
}
