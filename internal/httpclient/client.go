// Package httpclient builds the outbound HTTP clients used by request
// handlers: an ad-hoc default client, named clients configured under
// clients.<name>, and typed clients layered on a named client.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tjfontaine/webapi-sample/internal/config"
)

// DefaultTimeout applies to clients that do not configure one.
const DefaultTimeout = 30 * time.Second

// ErrUnknownClient is returned by Named for names missing from the config.
var ErrUnknownClient = errors.New("httpclient: unknown client")

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Status)
}

// Client is a configured resty client.
type Client struct {
	name string
	rc   *resty.Client
}

// Name returns the configured name, or "default".
func (c *Client) Name() string { return c.name }

// Resty exposes the underlying client for callers needing custom verbs.
func (c *Client) Resty() *resty.Client { return c.rc }

// GetString fetches url and returns the body as text. An empty url fetches
// the client's base URL.
func (c *Client) GetString(ctx context.Context, url string) (string, error) {
	resp, err := c.rc.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("%s client: %w", c.name, err)
	}
	if resp.IsError() {
		return "", &StatusError{
			Method: http.MethodGet,
			URL:    resp.Request.URL,
			Status: resp.StatusCode(),
			Body:   resp.String(),
		}
	}
	return resp.String(), nil
}

// Factory hands out the default client and the named clients. Clients are
// built once and shared; resty clients are safe for concurrent use.
type Factory struct {
	def   *Client
	named map[string]*Client
}

// FactoryOption configures a Factory.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	transport http.RoundTripper
	timeout   time.Duration
}

// WithTransport routes every client through rt. Tests use it to replay
// recorded traffic.
func WithTransport(rt http.RoundTripper) FactoryOption {
	return func(o *factoryOptions) { o.transport = rt }
}

// WithDefaultTimeout overrides DefaultTimeout.
func WithDefaultTimeout(d time.Duration) FactoryOption {
	return func(o *factoryOptions) { o.timeout = d }
}

// NewFactory builds the clients described by cfgs.
func NewFactory(cfgs map[string]config.ClientConfig, opts ...FactoryOption) *Factory {
	o := factoryOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	f := &Factory{
		def:   &Client{name: "default", rc: newRestyClient(config.ClientConfig{}, o)},
		named: make(map[string]*Client, len(cfgs)),
	}
	for name, cfg := range cfgs {
		f.named[name] = &Client{name: name, rc: newRestyClient(cfg, o)}
	}
	return f
}

func newRestyClient(cfg config.ClientConfig, o factoryOptions) *resty.Client {
	c := resty.New()
	switch {
	case o.transport != nil:
		c.SetTransport(o.transport)
	case cfg.BlockPrivate:
		c.SetTransport(SafeTransport())
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}
	c.SetTimeout(timeout)

	if cfg.BaseURL != "" {
		c.SetBaseURL(cfg.BaseURL)
	}
	if len(cfg.Headers) > 0 {
		c.SetHeaders(cfg.Headers)
	}
	for _, h := range cfg.RequireHeaders {
		c.OnBeforeRequest(RequireHeader(h))
	}
	return c
}

// Default returns the unconfigured client for ad-hoc requests.
func (f *Factory) Default() *Client {
	return f.def
}

// Named returns the client configured under name.
func (f *Factory) Named(name string) (*Client, error) {
	c, ok := f.named[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownClient, name)
	}
	return c, nil
}

// Names returns the configured client names in sorted order.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.named))
	for name := range f.named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
