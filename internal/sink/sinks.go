package sink

import (
	"context"
	"time"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Flagger records data gaps for later review.
type Flagger struct {
	w *Writer
}

// NewFlagger creates a Flagger writing under dir.
func NewFlagger(dir string) *Flagger { return &Flagger{w: NewWriter(dir)} }

// FlagMissing appends a missing-data line.
func (f *Flagger) FlagMissing(_ context.Context, ticketID, question string, facts model.MissingFacts) error {
	return f.w.Append(ticketID, map[string]any{
		"ticket_id": ticketID,
		"question":  question,
		"facts":     facts,
	})
}

// Path returns the file lines for ticketID go to.
func (f *Flagger) Path(ticketID string) string { return f.w.Path(ticketID) }

// Evidence persists search findings.
type Evidence struct {
	w *Writer
}

// NewEvidence creates an Evidence sink writing under dir.
func NewEvidence(dir string) *Evidence { return &Evidence{w: NewWriter(dir)} }

// BulkAppend writes one line per finding.
func (e *Evidence) BulkAppend(_ context.Context, ticketID string, findings []model.Finding) error {
	values := make([]any, len(findings))
	for i, f := range findings {
		values[i] = f
	}
	return e.w.Append(ticketID, values...)
}

// Path returns the file lines for ticketID go to.
func (e *Evidence) Path(ticketID string) string { return e.w.Path(ticketID) }

// Escalator records facts that need a human.
type Escalator struct {
	w *Writer
}

// NewEscalator creates an Escalator writing under dir.
func NewEscalator(dir string) *Escalator { return &Escalator{w: NewWriter(dir)} }

// Escalate appends an escalation line.
func (e *Escalator) Escalate(_ context.Context, ticketID string, rationale *model.Escalation) error {
	return e.w.Append(ticketID, map[string]any{
		"ticket_id": ticketID,
		"rationale": rationale,
	})
}

// Path returns the file lines for ticketID go to.
func (e *Escalator) Path(ticketID string) string { return e.w.Path(ticketID) }

// EventLog writes lifecycle events. It implements observe.Observer.
type EventLog struct {
	w   *Writer
	now func() time.Time
}

// NewEventLog creates an EventLog writing under dir.
func NewEventLog(dir string) *EventLog { return &EventLog{w: NewWriter(dir), now: time.Now} }

// Log appends an event line. Nil fields are dropped; event and timestamp
// are added unless the payload already carries them.
func (l *EventLog) Log(ticketID, event string, payload map[string]any) error {
	return l.w.Append(ticketID, BuildEvent(event, payload, l.now()))
}

// Path returns the file lines for ticketID go to.
func (l *EventLog) Path(ticketID string) string { return l.w.Path(ticketID) }

// BuildEvent assembles an event record.
func BuildEvent(event string, payload map[string]any, at time.Time) map[string]any {
	rec := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		if v == nil {
			continue
		}
		rec[k] = v
	}
	if _, ok := rec["event"]; !ok {
		rec["event"] = event
	}
	if _, ok := rec["timestamp"]; !ok {
		rec["timestamp"] = at.UTC().Format("2006-01-02T15:04:05.000") + "Z"
	}
	return rec
}
