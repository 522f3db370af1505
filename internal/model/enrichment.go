package model

// SummaryStatus is the outcome of applying facts to a record.
type SummaryStatus string

const (
	SummaryUpdated SummaryStatus = "updated"
	SummarySkipped SummaryStatus = "skipped"
)

// Escalation carries facts that could not be written: those without a
// matching column and those without a value.
type Escalation struct {
	UnmatchedFacts []Fact         `json:"unmatched_facts,omitempty"`
	EmptyFacts     []Fact         `json:"empty_facts,omitempty"`
	UnknownFields  map[string]any `json:"unknown_fields,omitempty"`
}

// Empty reports whether nothing was escalated.
func (e *Escalation) Empty() bool {
	return e == nil || (len(e.UnmatchedFacts) == 0 && len(e.EmptyFacts) == 0)
}

// EnrichmentSummary reports what the reconciler wrote and what it escalated.
type EnrichmentSummary struct {
	TicketID       string         `json:"ticket_id"`
	RecordID       string         `json:"record_id"`
	Status         SummaryStatus  `json:"status"`
	AppliedColumns []string       `json:"applied_columns"`
	AppliedFacts   []Fact         `json:"applied_facts"`
	Payload        map[string]any `json:"payload,omitempty"`
	Escalated      *Escalation    `json:"escalated,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	Error          string         `json:"error,omitempty"`
}
