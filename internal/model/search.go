package model

import "strings"

// SearchTask is a single directive for the evidence gatherer.
type SearchTask struct {
	Query       string `json:"query"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

// SearchResult is a free-form search hit. Providers disagree on key names, so
// accessors check the common aliases.
type SearchResult map[string]any

// URL returns the url or link of the result.
func (r SearchResult) URL() string { return r.str("url", "link", "href") }

// Title returns the title or name of the result.
func (r SearchResult) Title() string { return r.str("title", "name") }

// Snippet returns the best short text of the result.
func (r SearchResult) Snippet() string {
	return r.str("snippet", "text", "description", "content", "summary")
}

func (r SearchResult) str(keys ...string) string {
	for _, k := range keys {
		if s, ok := r[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Finding is one ranked search result persisted to the evidence sink.
type Finding struct {
	TicketID string       `json:"ticket_id"`
	Topic    string       `json:"topic"`
	Query    string       `json:"query"`
	Rank     int          `json:"rank"`
	Result   SearchResult `json:"result"`
}

// SuccessfulSearch summarizes a task that returned at least one result.
type SuccessfulSearch struct {
	Topic       string `json:"topic"`
	Query       string `json:"query"`
	Description string `json:"description"`
	ResultCount int    `json:"result_count"`
}

// SearchOutcome is the product of executing a research plan.
type SearchOutcome struct {
	Tasks              []SearchTask       `json:"tasks"`
	Findings           []Finding          `json:"findings"`
	SuccessfulSearches []SuccessfulSearch `json:"successful_searches,omitempty"`
	BackfillPrompt     string             `json:"backfill_prompt,omitempty"`
}
