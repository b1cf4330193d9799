// Package clientcache memoises downstream HTTP clients keyed by
// (ProviderConfig, model name) so a translated request reuses a warm
// transport instead of rebuilding one per call (spec.md §4.6, C8).
package clientcache

import (
	"context"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/nilsecker/anthrogate/internal/apierr"
	"github.com/nilsecker/anthrogate/internal/config"
)

// Client bundles the resolved HTTP transport and API key a translated
// request needs to reach one provider/model pair.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Adapter    config.AdapterKind
}

// Cache is safe for concurrent reads and writes. A miss may race: at
// most one construction "wins", the rest discard their duplicate
// (spec.md §5 — correctness does not depend on dedup).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Client
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Client)}
}

// Get returns the cached client for (provider, model), constructing and
// storing one on a miss. globalTimeouts is the config's top-level
// timeouts_ms, consulted when provider declares none of its own
// (spec.md §6 "Global default timeouts", ProviderConfig.EffectiveTimeouts).
// environLookup defaults to os.LookupEnv; tests substitute a fake.
func (c *Cache) Get(provider config.ProviderConfig, model string, globalTimeouts config.TimeoutsConfig, environLookup func(string) (string, bool)) (*Client, error) {
	if environLookup == nil {
		environLookup = os.LookupEnv
	}
	key := cacheKey(provider, model)

	c.mu.RLock()
	if client, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return client, nil
	}
	c.mu.RUnlock()

	client, err := newClient(provider, globalTimeouts, environLookup)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.entries[key] = client
	c.mu.Unlock()

	return client, nil
}

func cacheKey(provider config.ProviderConfig, model string) string {
	return provider.Hash() + "|" + model
}

// newClient resolves the provider's API key from its configured
// environment variable at call time (spec.md §6 — "resolved by reading
// the env var ... at request time"), adapted from the teacher's
// env-var-backed token store concept into a flat lookup since
// anthrogate has no OAuth refresh cycle to manage.
func newClient(provider config.ProviderConfig, globalTimeouts config.TimeoutsConfig, environLookup func(string) (string, bool)) (*Client, error) {
	var apiKey string
	if provider.APIKeyEnv != "" {
		key, ok := environLookup(provider.APIKeyEnv)
		if !ok || key == "" {
			return nil, apierr.New(apierr.Authentication, "missing API key env var: "+provider.APIKeyEnv)
		}
		apiKey = key
	}

	timeouts := provider.EffectiveTimeouts(globalTimeouts)
	dialer := &net.Dialer{Timeout: timeouts.Connect()}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	transport.ResponseHeaderTimeout = timeouts.Read()

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   0, // streaming responses must not be capped by an overall client timeout
	}

	return &Client{
		HTTPClient: httpClient,
		BaseURL:    provider.BaseURL,
		APIKey:     apiKey,
		Adapter:    provider.Adapter,
	}, nil
}
