// Package reconciler maps facts onto writable columns, persists them in a
// single update and escalates whatever does not fit the schema.
package reconciler

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/payload"
	"github.com/sells-group/enrich-cli/internal/record"
)

// RecordWriter persists column updates for one record.
type RecordWriter interface {
	UpdateRecord(ctx context.Context, recordID string, payload map[string]any) error
}

// Escalator receives facts that could not be written.
type Escalator interface {
	Escalate(ctx context.Context, ticketID string, e *model.Escalation) error
}

// Config holds reconciler settings.
type Config struct {
	// AllowedColumns restricts writes. Empty means open schema.
	AllowedColumns []string
	MaxTokens      int64
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLLM enables a short reasoning note on each summary.
func WithLLM(c llm.Client) Option {
	return func(r *Reconciler) { r.llm = c }
}

// Reconciler is the fact reconciler.
type Reconciler struct {
	writer    RecordWriter
	escalator Escalator
	llm       llm.Client
	idx       *record.ColumnIndex
	cfg       Config
}

// New creates a Reconciler.
func New(writer RecordWriter, escalator Escalator, cfg Config, opts ...Option) *Reconciler {
	r := &Reconciler{
		writer:    writer,
		escalator: escalator,
		cfg:       cfg,
		idx:       record.NewColumnIndex(cfg.AllowedColumns),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Apply writes the matched facts of input to recordID. Input is a []model.Fact
// or a column-keyed map. Empty and unmatched facts are escalated together.
func (r *Reconciler) Apply(ctx context.Context, ticketID, recordID string, input any) *model.EnrichmentSummary {
	facts, shim := normalize(input)

	summary := &model.EnrichmentSummary{
		TicketID: ticketID,
		RecordID: recordID,
		Status:   model.SummarySkipped,
	}
	esc := &model.Escalation{}
	updates := make(map[string]any)
	var cols []string
	var applied []model.Fact

	for _, f := range facts {
		if model.IsEmptyValue(f.Value) {
			esc.EmptyFacts = append(esc.EmptyFacts, f)
			continue
		}
		col, ok := r.Match(f)
		if !ok {
			esc.UnmatchedFacts = append(esc.UnmatchedFacts, f)
			if shim {
				if esc.UnknownFields == nil {
					esc.UnknownFields = make(map[string]any)
				}
				esc.UnknownFields[strings.ToUpper(f.Concept)] = f.Value
			}
			continue
		}
		if _, dup := updates[col]; dup {
			zap.L().Debug("reconciler: column already set, keeping first fact",
				zap.String("ticket_id", ticketID),
				zap.String("column", col),
				zap.String("concept", f.Concept),
			)
			continue
		}
		updates[col] = cleanValue(f.Value)
		cols = append(cols, col)
		applied = append(applied, f)
	}

	if len(updates) > 0 {
		summary.Payload = updates
		if err := r.write(ctx, recordID, updates); err != nil {
			zap.L().Warn("reconciler: update failed",
				zap.String("ticket_id", ticketID),
				zap.String("record_id", recordID),
				zap.Error(err),
			)
			summary.Error = err.Error()
		} else {
			summary.Status = model.SummaryUpdated
			summary.AppliedColumns = cols
			summary.AppliedFacts = applied
		}
	}

	if !esc.Empty() || len(esc.UnknownFields) > 0 {
		summary.Escalated = esc
		if r.escalator != nil {
			if err := r.escalator.Escalate(ctx, ticketID, esc); err != nil {
				zap.L().Warn("reconciler: escalation failed",
					zap.String("ticket_id", ticketID),
					zap.Error(err),
				)
			}
		}
	}

	summary.Reasoning = r.reason(ctx, summary)

	zap.L().Info("reconciler: enrichment applied",
		zap.String("ticket_id", ticketID),
		zap.String("record_id", recordID),
		zap.String("status", string(summary.Status)),
		zap.Strings("columns", summary.AppliedColumns),
		zap.Int("unmatched", len(esc.UnmatchedFacts)),
		zap.Int("empty", len(esc.EmptyFacts)),
	)
	return summary
}

func (r *Reconciler) write(ctx context.Context, recordID string, updates map[string]any) error {
	if r.writer == nil {
		return eris.New("reconciler: no record writer configured")
	}
	return r.writer.UpdateRecord(ctx, recordID, updates)
}

// Match returns the column a fact should be written to. With allowed columns
// it tries candidate columns, then the concept, then a unique token-subset
// match. In open-schema mode it trusts the first hint or the uppercase
// concept.
func (r *Reconciler) Match(f model.Fact) (string, bool) {
	if r.idx.Len() == 0 {
		for _, c := range f.CandidateColumns {
			if c = strings.TrimSpace(c); c != "" {
				return c, true
			}
		}
		if f.Concept == "" {
			return "", false
		}
		return strings.ToUpper(f.Concept), true
	}
	for _, c := range f.CandidateColumns {
		if col, ok := r.idx.Resolve(c); ok {
			return col, true
		}
	}
	if col, ok := r.idx.Resolve(f.Concept); ok {
		return col, true
	}
	return r.idx.MatchTokens(f.Concept)
}

// normalize turns input into facts. The second result reports whether input
// was a column-keyed map.
func normalize(input any) ([]model.Fact, bool) {
	switch v := input.(type) {
	case []model.Fact:
		return v, false
	case map[string]any:
		return fromMap(v), true
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return fromMap(m), true
	default:
		return nil, false
	}
}

func fromMap(m map[string]any) []model.Fact {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	facts := make([]model.Fact, 0, len(keys))
	for _, k := range keys {
		concept := model.CanonicalConcept(k)
		if concept == "" {
			continue
		}
		facts = append(facts, model.Fact{
			Concept:          concept,
			Value:            m[k],
			CandidateColumns: []string{k},
		})
	}
	return facts
}

func cleanValue(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}

const reasoningSystemPrompt = `You review record updates. In two sentences, summarize which columns were written and flag anything that looks inconsistent. Do not invent values.`

func (r *Reconciler) reason(ctx context.Context, s *model.EnrichmentSummary) string {
	if r.llm == nil {
		return ""
	}
	body, err := json.Marshal(map[string]any{
		"record_id":       s.RecordID,
		"status":          s.Status,
		"applied_columns": s.AppliedColumns,
		"payload":         s.Payload,
		"escalated":       s.Escalated,
		"error":           s.Error,
	})
	if err != nil {
		return ""
	}
	resp, err := r.llm.Generate(ctx, llm.Request{
		Agent:     "reconciler.reasoning",
		System:    reasoningSystemPrompt,
		Messages:  llm.User(string(body)),
		MaxTokens: r.cfg.MaxTokens,
	})
	if err != nil {
		zap.L().Debug("reconciler: reasoning unavailable", zap.Error(err))
		return ""
	}
	return payload.Text(resp)
}
