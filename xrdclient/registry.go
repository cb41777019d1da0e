package xrdclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Factory builds a Client able to serve the given URL.
type Factory func(ctx context.Context, u *url.URL) (Client, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Factory)
)

// Register adds a client factory for a URL scheme. Later registrations for
// the same scheme win, which lets tests shadow a real implementation.
func Register(scheme string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(scheme)] = f
}

// Get looks up the factory for a scheme.
func Get(scheme string) (Factory, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	f, ok := registry[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("didn't find a client for scheme %q", scheme)
	}
	return f, nil
}

// NewClient parses rawURL and builds a client from the registered factory
// for its scheme.
func NewClient(ctx context.Context, rawURL string) (Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	f, err := Get(u.Scheme)
	if err != nil {
		return nil, err
	}
	return f(ctx, u)
}
