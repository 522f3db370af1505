package search

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/pkg/jina"
)

// Jina searches through the Jina AI search endpoint.
type Jina struct {
	client jina.Client
}

// NewJina wraps a Jina client.
func NewJina(client jina.Client) *Jina {
	return &Jina{client: client}
}

// Search implements Client. A leading site: operator becomes Jina's site filter.
func (j *Jina) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	site, rest := SplitSite(query)
	var opts []jina.SearchOption
	if site != "" {
		opts = append(opts, jina.WithSiteFilter(site))
		if rest == "" {
			rest = site
		}
	}

	resp, err := j.client.Search(ctx, rest, opts...)
	if err != nil {
		var se *jina.StatusError
		if errors.As(err, &se) {
			err = resilience.FromStatus(err, se.Code)
		}
		return nil, eris.Wrap(err, "search: jina")
	}

	results := make([]model.SearchResult, 0, len(resp.Data))
	for _, d := range resp.Data {
		r := model.SearchResult{
			"title": d.Title,
			"url":   d.URL,
		}
		if d.Description != "" {
			r["snippet"] = d.Description
		}
		if d.Content != "" {
			r["content"] = d.Content
		}
		results = append(results, r)
	}
	return truncate(results, limit), nil
}
