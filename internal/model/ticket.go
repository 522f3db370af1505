package model

import "time"

// Ticket is one question asked against one record.
type Ticket struct {
	ID       string         `json:"ticket_id" yaml:"ticket_id"`
	Question string         `json:"question" yaml:"question"`
	RecordID string         `json:"record_id" yaml:"record_id"`
	Facts    []Fact         `json:"facts,omitempty" yaml:"facts,omitempty"`
	Fields   map[string]any `json:"enriched_fields,omitempty" yaml:"enriched_fields,omitempty"`
}

// TicketResult is the structured outcome of processing a ticket. Every ticket
// yields one, whatever stage it stopped at.
type TicketResult struct {
	TicketID           string              `json:"ticket_id"`
	Question           string              `json:"question"`
	RecordID           string              `json:"record_id"`
	Status             AnswerStatus        `json:"status"`
	PriorStatus        AnswerStatus        `json:"prior_status,omitempty"`
	Answers            map[string]any      `json:"answers,omitempty"`
	Facts              []Fact              `json:"facts,omitempty"`
	MissingColumns     []string            `json:"missing_columns,omitempty"`
	CandidateURLs      []string            `json:"candidate_urls,omitempty"`
	Context            map[string]any      `json:"context,omitempty"`
	AnswerOrigin       Origin              `json:"answer_origin,omitempty"`
	Sources            map[string][]string `json:"sources,omitempty"`
	Notes              string              `json:"notes,omitempty"`
	ScraperTasks       []SearchTask        `json:"scraper_tasks,omitempty"`
	ScraperFindings    int                 `json:"scraper_findings"`
	SuccessfulSearches []SuccessfulSearch  `json:"successful_searches,omitempty"`
	BackfillPrompt     string              `json:"backfill_prompt,omitempty"`
	Update             *EnrichmentSummary  `json:"update,omitempty"`
	SchemaProposal     *SchemaProposal     `json:"schema_proposal,omitempty"`
	StartedAt          time.Time           `json:"started_at"`
	DurationMs         int64               `json:"duration_ms"`
}

// TicketStatus is the lifecycle state of a persisted ticket.
type TicketStatus string

const (
	TicketQueued   TicketStatus = "queued"
	TicketRunning  TicketStatus = "running"
	TicketComplete TicketStatus = "complete"
	TicketFailed   TicketStatus = "failed"
)

// TicketRun is a persisted ticket with its result.
type TicketRun struct {
	ID        string        `json:"id"`
	Ticket    Ticket        `json:"ticket"`
	Status    TicketStatus  `json:"status"`
	Result    *TicketResult `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
