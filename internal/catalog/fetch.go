package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"merch-storefront/internal/model"
)

// Source supplies the current catalog.
// Interface allows mocking in tests.
type Source interface {
	Products(ctx context.Context) ([]Product, error)
}

// DefaultFetchTimeout is the timeout for fetching the catalog document.
const DefaultFetchTimeout = 10 * time.Second

// MaxCatalogSize caps the catalog document at 4MB.
const MaxCatalogSize = 4 << 20

// Fetcher loads the catalog document over HTTP.
// Static hosts (GitHub Pages, CDNs) cache aggressively, so every request carries
// a timestamp query parameter to bypass intermediate caches.
type Fetcher struct {
	client *http.Client
	url    string
	now    func() time.Time
}

// NewFetcher creates a fetcher for catalogURL. A nil client gets a default
// client with DefaultFetchTimeout.
func NewFetcher(catalogURL string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &Fetcher{
		client: client,
		url:    catalogURL,
		now:    time.Now,
	}
}

// Products fetches and parses the catalog. Network failures and non-2xx
// responses are CatalogLoadErrors; a malformed document is a CatalogFormatError.
func (f *Fetcher) Products(ctx context.Context) ([]Product, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return nil, model.NewCatalogLoadError(0, fmt.Errorf("parse catalog url: %w", err))
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(f.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, model.NewCatalogLoadError(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, model.NewCatalogLoadError(0, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewCatalogLoadError(resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxCatalogSize))
	if err != nil {
		return nil, model.NewCatalogLoadError(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	return Parse(body)
}

// Cache memoizes the last successfully loaded catalog for a TTL so that many
// buyer sessions share one fetch. Failed refreshes are returned to the caller
// rather than masked by stale data, so the buyer sees a "failed to load" state.
type Cache struct {
	source Source
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	products  []Product
	expiresAt time.Time
}

// NewCache wraps source. A zero ttl disables caching.
func NewCache(source Source, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		source: source,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Products returns the cached catalog while fresh, otherwise refetches.
// The mutex is held across the fetch so concurrent sessions coalesce on one request.
func (c *Cache) Products(ctx context.Context) ([]Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.products != nil && now.Before(c.expiresAt) {
		return c.products, nil
	}

	products, err := c.source.Products(ctx)
	if err != nil {
		c.logger.Warn("catalog refresh failed", slog.String("error", err.Error()))
		return nil, err
	}

	c.logger.Debug("catalog refreshed", slog.Int("products", len(products)))
	if c.ttl > 0 {
		c.products = products
		c.expiresAt = now.Add(c.ttl)
	}
	return products, nil
}

// Invalidate drops the cached catalog so the next call refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.products = nil
	c.mu.Unlock()
}
