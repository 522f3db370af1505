package search

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// Throttled spaces calls to the wrapped client to at most perMinute.
type Throttled struct {
	next    Client
	limiter *rate.Limiter
}

// NewThrottled returns next unchanged when perMinute is not positive.
func NewThrottled(next Client, perMinute int) Client {
	if perMinute <= 0 {
		return next
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Search implements Client.
func (t *Throttled) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Search(ctx, query, limit)
}

// Cached memoizes successful searches by query and limit.
type Cached struct {
	next  Client
	cache *gocache.Cache
}

// NewCached returns next unchanged when ttl is not positive.
func NewCached(next Client, ttl time.Duration) Client {
	if ttl <= 0 {
		return next
	}
	return &Cached{next: next, cache: gocache.New(ttl, 2*ttl)}
}

// Search implements Client. Errors are never cached.
func (c *Cached) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	key := strconv.Itoa(limit) + "|" + query
	if v, ok := c.cache.Get(key); ok {
		zap.L().Debug("search: cache hit", zap.String("query", query))
		return v.([]model.SearchResult), nil
	}
	results, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, results)
	return results, nil
}

// Retrying retries transient failures of the wrapped client.
type Retrying struct {
	next    Client
	cfg     resilience.RetryConfig
	service string
}

// NewRetrying wraps next with retries; service names the provider in logs.
func NewRetrying(next Client, cfg resilience.RetryConfig, service string) *Retrying {
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(service, "search")
	}
	return &Retrying{next: next, cfg: cfg, service: service}
}

// Search implements Client.
func (r *Retrying) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) ([]model.SearchResult, error) {
		return r.next.Search(ctx, query, limit)
	})
}
