// Package resolver answers a question against a single dataset record,
// flagging the gap when the record, the column or the value is missing.
package resolver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/observe"
	"github.com/sells-group/enrich-cli/internal/record"
	"github.com/sells-group/enrich-cli/internal/rowstore"
)

// Flagger receives data gaps for downstream research.
type Flagger interface {
	FlagMissing(ctx context.Context, ticketID, question string, facts model.MissingFacts) error
}

// Config tunes the resolver.
type Config struct {
	Table      string
	PrimaryKey string
	// Catalog is the candidate column universe. Empty means the fetched
	// row's own keys.
	Catalog []string
	// Synonyms maps a lowercase phrase to the column it names.
	Synonyms map[string]string
	// MaxColumns bounds how many columns the model may select.
	MaxColumns int
	// CandidateURLFields restricts URL discovery. Empty scans every column.
	CandidateURLFields []string
	// ContextColumns overrides record.DefaultContextColumns.
	ContextColumns []string
	MaxTokens      int64
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = "dataset"
	}
	if c.PrimaryKey == "" {
		c.PrimaryKey = "BRIZO_ID"
	}
	if c.MaxColumns <= 0 {
		c.MaxColumns = 5
	}
	if c.Synonyms == nil {
		c.Synonyms = DefaultSynonyms
	}
	return c
}

// DefaultSynonyms covers common phrasings of the canonical identity and
// contact columns.
var DefaultSynonyms = map[string]string{
	"company name":   "BUSINESS_NAME",
	"website":        "WEBSITE",
	"web site":       "WEBSITE",
	"homepage":       "WEBSITE",
	"url":            "WEBSITE",
	"phone":          "PHONE",
	"telephone":      "PHONE",
	"city":           "LOCATION_CITY",
	"town":           "LOCATION_CITY",
	"state":          "LOCATION_STATE_CODE",
	"country":        "LOCATION_COUNTRY",
	"parent company": "PARENT_NAME",
	"chain":          "CHAIN_NAME",
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLLM enables model-assisted column selection, fact extraction and
// evidence incorporation.
func WithLLM(c llm.Client) Option {
	return func(r *Resolver) { r.llm = c }
}

// WithObserver attaches a lifecycle observer.
func WithObserver(o observe.Observer) Option {
	return func(r *Resolver) { r.obs = observe.NewSafe(o) }
}

// Resolver is the query resolver.
type Resolver struct {
	exec    rowstore.Executor
	flagger Flagger
	llm     llm.Client
	obs     *observe.Safe
	cfg     Config

	mu      sync.Mutex
	memoID  string
	memoRow record.Row
}

// New creates a Resolver.
func New(exec rowstore.Executor, flagger Flagger, cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		exec:    exec,
		flagger: flagger,
		cfg:     cfg.withDefaults(),
		obs:     observe.NewSafe(nil),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Answer resolves question against recordID. The outcome is always an
// Answer; failures degrade to a status.
func (r *Resolver) Answer(ctx context.Context, ticketID, question, recordID string) *model.Answer {
	r.obs.Emit(ticketID, "question_received", map[string]any{
		"question":  question,
		"record_id": recordID,
	})

	ans := &model.Answer{TicketID: ticketID, Question: question, RecordID: recordID}
	defer func() {
		r.obs.Emit(ticketID, "question_resolved", map[string]any{
			"status":        ans.Status,
			"answers":       ans.Answers,
			"answer_origin": ans.AnswerOrigin,
		})
	}()

	row, err := r.fetch(ctx, ticketID, recordID)
	if row == nil {
		ans.Status = model.StatusRecordNotFound
		if err != nil {
			ans.Notes = err.Error()
		}
		r.flag(ctx, ans, model.MissingFacts{
			Reason:   string(model.StatusRecordNotFound),
			Status:   ans.Status,
			RecordID: recordID,
		})
		return ans
	}

	ans.Context = record.BuildContext(row, r.cfg.ContextColumns)
	ans.CandidateURLs = record.CandidateURLs(row, r.cfg.CandidateURLFields)

	columns, strategy := r.selectColumns(ctx, ticketID, question, row)
	ans.Columns = columns
	r.obs.Emit(ticketID, "columns_inferred", map[string]any{
		"columns":  columns,
		"strategy": strategy,
	})
	if len(columns) == 0 {
		ans.Status = model.StatusUnknownQuestion
		r.flag(ctx, ans, ans.Missing(string(model.StatusUnknownQuestion)))
		return ans
	}

	facts, missing := datasetFacts(row, columns)
	var declared model.AnswerStatus
	if len(facts) == 0 && r.llm != nil {
		facts, declared = r.inferFacts(ctx, ticketID, question, columns, row)
	}
	r.obs.Emit(ticketID, "facts_extracted", map[string]any{
		"count":  len(facts),
		"origin": model.AggregateOrigin(facts),
	})

	// An explicit non-answered status from the model wins over any facts it
	// returned alongside.
	if declared != "" && declared != model.StatusAnswered {
		facts = nil
	}
	if len(facts) == 0 {
		ans.Status = model.StatusMissingValues
		if declared == model.StatusUnknownQuestion {
			ans.Status = declared
		}
		ans.MissingColumns = missing
		r.flag(ctx, ans, ans.Missing(string(ans.Status)))
		return ans
	}

	ans.Status = model.StatusAnswered
	ans.Facts = facts
	ans.Answers = answersFor(facts, record.NewColumnIndex(columns))
	ans.AnswerOrigin = model.AggregateOrigin(facts)
	ans.Sources = sourcesFor(facts, nil)
	return ans
}

// fetch runs the point lookup and memoizes the result for the record. A nil
// row means not found; err is set when the lookup itself failed.
func (r *Resolver) fetch(ctx context.Context, ticketID, recordID string) (record.Row, error) {
	stmt := rowstore.PointQuery(r.exec, r.cfg.Table, r.cfg.PrimaryKey, recordID)
	rows, err := r.exec.Run(ctx, stmt)

	payload := map[string]any{"sql": stmt}
	if err != nil {
		payload["error"] = err.Error()
	}
	r.obs.Emit(ticketID, "sql_executed", payload)

	var row record.Row
	if err != nil {
		zap.L().Warn("resolver: point lookup failed",
			zap.String("ticket_id", ticketID),
			zap.String("record_id", recordID),
			zap.Error(err),
		)
	} else if len(rows) > 0 {
		row = rows[0]
	}
	r.obs.Emit(ticketID, "record_fetch_result", map[string]any{
		"record_id": recordID,
		"found":     row != nil,
		"columns":   len(row),
	})

	if row != nil {
		r.mu.Lock()
		r.memoID, r.memoRow = recordID, row
		r.mu.Unlock()
	}
	return row, err
}

// cached returns the memoized row for recordID, fetching when the memo
// holds a different record.
func (r *Resolver) cached(ctx context.Context, ticketID, recordID string) record.Row {
	r.mu.Lock()
	if r.memoRow != nil && r.memoID == recordID {
		row := r.memoRow
		r.mu.Unlock()
		return row
	}
	r.mu.Unlock()
	row, _ := r.fetch(ctx, ticketID, recordID)
	return row
}

func (r *Resolver) flag(ctx context.Context, ans *model.Answer, facts model.MissingFacts) {
	if r.flagger == nil {
		return
	}
	if err := r.flagger.FlagMissing(ctx, ans.TicketID, ans.Question, facts); err != nil {
		zap.L().Warn("resolver: flag missing failed",
			zap.String("ticket_id", ans.TicketID),
			zap.String("reason", facts.Reason),
			zap.Error(err),
		)
	}
}
