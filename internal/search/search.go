// Package search adapts web search providers to a single client interface
// and layers rate limiting, caching and retries on top of them.
package search

import (
	"context"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Client runs a web query and returns at most limit results.
type Client interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
}

// Null is used when no provider is configured. It never returns results.
type Null struct{}

// Search implements Client.
func (Null) Search(context.Context, string, int) ([]model.SearchResult, error) {
	return nil, nil
}

// SplitSite separates a leading "site:<host>" operator from the rest of the
// query. Providers with a native domain filter use it instead of the operator.
func SplitSite(query string) (site, rest string) {
	q := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToLower(q), "site:") {
		return "", q
	}
	q = q[len("site:"):]
	host, tail, _ := strings.Cut(q, " ")
	return strings.ToLower(strings.TrimSpace(host)), strings.TrimSpace(tail)
}

func truncate(results []model.SearchResult, limit int) []model.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
