package llm

import (
	"context"
	"fmt"
	"sync"
)

// Middleware wraps a provider call. It receives the request and a next
// function that calls the downstream handler, and returns the raw response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*RawResponse, error)) (*RawResponse, error)

// Client routes requests to registered provider adapters and applies
// middleware. It never retries on its own; retry behavior is installed as
// middleware by the host.
type Client struct {
	adapters        map[string]Adapter
	defaultProvider string
	middleware      []Middleware
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAdapter registers a provider adapter.
func WithAdapter(adapter Adapter) ClientOption {
	return func(c *Client) {
		c.adapters[adapter.Name()] = adapter
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		adapters: make(map[string]Adapter),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one adapter, use it.
	if c.defaultProvider == "" && len(c.adapters) == 1 {
		for name := range c.adapters {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterAdapter adds a provider adapter to the client.
func (c *Client) RegisterAdapter(adapter Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[adapter.Name()] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = adapter.Name()
	}
}

// AdapterFor resolves the adapter a request routes to: explicit provider,
// then the default provider, then catalog inference from the model name.
func (c *Client) AdapterFor(req Request) (Adapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	adapter, ok := c.adapters[name]
	if !ok {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, nil
}

// Complete sends a request through middleware to the resolved adapter and
// returns the provider's raw response.
func (c *Client) Complete(ctx context.Context, req Request) (*RawResponse, error) {
	adapter, err := c.AdapterFor(req)
	if err != nil {
		return nil, err
	}

	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	handler := func(ctx context.Context, r Request) (*RawResponse, error) {
		return adapter.Complete(ctx, r)
	}

	// Apply middleware in reverse order so first registered runs first.
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*RawResponse, error) {
			return mw(ctx, r, next)
		}
	}

	return handler(ctx, req)
}
