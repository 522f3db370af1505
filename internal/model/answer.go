package model

// AnswerStatus is the state a question reaches in the query resolver.
type AnswerStatus string

const (
	StatusRecordNotFound  AnswerStatus = "record_not_found"
	StatusUnknownQuestion AnswerStatus = "unknown_question"
	StatusMissingValues   AnswerStatus = "missing_values"
	StatusAnswered        AnswerStatus = "answered"
)

// Answer is the resolver's verdict for one question against one record.
type Answer struct {
	TicketID       string              `json:"ticket_id"`
	Question       string              `json:"question"`
	RecordID       string              `json:"record_id"`
	Status         AnswerStatus        `json:"status"`
	Facts          []Fact              `json:"facts,omitempty"`
	Answers        map[string]any      `json:"answers,omitempty"`
	Columns        []string            `json:"columns,omitempty"`
	MissingColumns []string            `json:"missing_columns,omitempty"`
	CandidateURLs  []string            `json:"candidate_urls,omitempty"`
	Context        map[string]any      `json:"context,omitempty"`
	AnswerOrigin   Origin              `json:"answer_origin,omitempty"`
	Sources        map[string][]string `json:"sources,omitempty"`
	Notes          string              `json:"notes,omitempty"`
}

// Missing builds the missing-data payload carried to the evidence gatherer.
func (a *Answer) Missing(reason string) MissingFacts {
	return MissingFacts{
		Reason:         reason,
		Status:         a.Status,
		RecordID:       a.RecordID,
		Question:       a.Question,
		MissingColumns: a.MissingColumns,
		CandidateURLs:  a.CandidateURLs,
		Context:        a.Context,
	}
}

// MissingFacts describes a data gap for the missing-data sink and the
// evidence gatherer.
type MissingFacts struct {
	Reason         string         `json:"reason"`
	Status         AnswerStatus   `json:"status"`
	RecordID       string         `json:"record_id,omitempty"`
	Question       string         `json:"question,omitempty"`
	MissingColumns []string       `json:"missing_columns,omitempty"`
	CandidateURLs  []string       `json:"candidate_urls,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}
