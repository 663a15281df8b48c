// Package client connects to a remote context manager and hands out state
// accessors bound to its transaction contexts.
//
// The client initializes from configuration via New. Functional options allow
// test overrides of the transport and observer.
//
//	c, err := client.New(&cfg)
//	defer c.Close()
//	values, err := c.Accessor(contextID).Get(ctx, addresses)
package client

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"connectrpc.com/connect"
	"github.com/tailored-agentic-units/statecontext/observability"
	"github.com/tailored-agentic-units/statecontext/state"
	"github.com/tailored-agentic-units/statecontext/stream"
)

// Option configures a Client before its stream is created.
type Option func(*Client)

// WithHTTPClient overrides http.DefaultClient.
func WithHTTPClient(h connect.HTTPClient) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger overrides the stream's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver adds o alongside the configured observer for every accessor.
// Both receive each event.
func WithObserver(o observability.Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithConnectOptions passes options through to the connect clients.
func WithConnectOptions(opts ...connect.ClientOption) Option {
	return func(c *Client) { c.connectOpts = append(c.connectOpts, opts...) }
}

// Client owns one ConnectStream shared by every accessor it creates.
type Client struct {
	cfg         Config
	httpClient  connect.HTTPClient
	logger      *slog.Logger
	observer    observability.Observer
	connectOpts []connect.ClientOption
	stream      *stream.ConnectStream
}

// New creates a Client from configuration. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Client, error) {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}

	endpoint, err := url.Parse(merged.Endpoint)
	if err != nil || endpoint.Host == "" || (endpoint.Scheme != "http" && endpoint.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, merged.Endpoint)
	}

	c := &Client{
		cfg:        merged,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger != nil {
		c.cfg.Stream.Logger = c.logger
	}

	c.stream = stream.NewConnectStream(c.httpClient, merged.Endpoint, c.cfg.Stream, c.connectOpts...)
	return c, nil
}

// Accessor returns a state accessor bound to contextID.
func (c *Client) Accessor(contextID string) *state.Accessor {
	opts := []state.Option{state.WithConfig(&c.cfg.State)}
	if c.observer != nil {
		configured := observability.Resolve(c.cfg.State.Observer, observability.NoOpObserver{})
		opts = append(opts, state.WithObserver(observability.NewMultiObserver(configured, c.observer)))
	}
	return state.New(c.stream, contextID, opts...)
}

func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) Metrics() stream.MetricsSnapshot {
	return c.stream.Metrics()
}

// Close cancels calls still in flight and waits for them to finish.
func (c *Client) Close() error {
	return c.stream.Close()
}
