package search

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/record"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/pkg/perplexity"
)

const perplexitySystem = "You are a research assistant. Answer concisely with facts about the business in question and cite the pages you used."

// Perplexity turns a Perplexity completion into search results: one per
// search_result, else one per citation. The answer text is attached to the
// first result as its snippet when the source carries none.
type Perplexity struct {
	client perplexity.Client
	model  string
}

// NewPerplexity wraps a Perplexity client. An empty model uses the client default.
func NewPerplexity(client perplexity.Client, model string) *Perplexity {
	return &Perplexity{client: client, model: model}
}

// Search implements Client.
func (p *Perplexity) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: p.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexitySystem},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		var se *perplexity.StatusError
		if errors.As(err, &se) {
			err = resilience.FromStatus(err, se.Code)
		}
		return nil, eris.Wrap(err, "search: perplexity")
	}

	var answer string
	if len(resp.Choices) > 0 {
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
	}

	var results []model.SearchResult
	switch {
	case len(resp.SearchResults) > 0:
		for _, sr := range resp.SearchResults {
			r := model.SearchResult{"title": sr.Title, "url": sr.URL}
			if sr.Snippet != "" {
				r["snippet"] = sr.Snippet
			}
			if sr.Date != "" {
				r["date"] = sr.Date
			}
			results = append(results, r)
		}
	case len(resp.Citations) > 0:
		for _, u := range resp.Citations {
			results = append(results, model.SearchResult{"title": record.Host(u), "url": u})
		}
	case answer != "":
		results = append(results, model.SearchResult{"title": "perplexity answer", "snippet": answer})
		return results, nil
	}

	if len(results) > 0 && answer != "" && results[0].Snippet() == "" {
		results[0]["snippet"] = answer
	}
	return truncate(results, limit), nil
}
