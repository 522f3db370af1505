// Package gatherer plans and runs web searches for data the dataset lacks
// and persists the ranked results as evidence.
package gatherer

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/search"
)

// EvidenceSink persists findings.
type EvidenceSink interface {
	BulkAppend(ctx context.Context, ticketID string, findings []model.Finding) error
}

// MultiSink fans findings out to several sinks. Every sink is attempted and
// the first error is returned.
type MultiSink []EvidenceSink

// BulkAppend implements EvidenceSink.
func (m MultiSink) BulkAppend(ctx context.Context, ticketID string, findings []model.Finding) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.BulkAppend(ctx, ticketID, findings); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DefaultHostDenylist holds search engines, link shorteners and local hosts
// that never make useful site: scopes.
var DefaultHostDenylist = []string{
	"localhost",
	"127.0.0.1",
	"google.com",
	"bing.com",
	"duckduckgo.com",
	"bit.ly",
	"linktr.ee",
	"goo.gl",
}

// Config tunes planning and execution.
type Config struct {
	// ResultLimit bounds results per task.
	ResultLimit  int
	HostDenylist []string
	// Concurrency above one runs tasks in parallel.
	Concurrency int
	// MaxLLMTasks bounds model-proposed tasks.
	MaxLLMTasks int
	MaxTokens   int64
}

func (c Config) withDefaults() Config {
	if c.ResultLimit <= 0 {
		c.ResultLimit = 5
	}
	if c.HostDenylist == nil {
		c.HostDenylist = DefaultHostDenylist
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxLLMTasks <= 0 {
		c.MaxLLMTasks = 3
	}
	return c
}

// Option configures a Gatherer.
type Option func(*Gatherer)

// WithLLM lets the model propose extra search tasks.
func WithLLM(c llm.Client) Option {
	return func(g *Gatherer) { g.llm = c }
}

// Gatherer is the evidence gatherer.
type Gatherer struct {
	search search.Client
	sink   EvidenceSink
	llm    llm.Client
	cfg    Config
	deny   map[string]struct{}
}

// New creates a Gatherer.
func New(client search.Client, sink EvidenceSink, cfg Config, opts ...Option) *Gatherer {
	cfg = cfg.withDefaults()
	g := &Gatherer{
		search: client,
		sink:   sink,
		cfg:    cfg,
		deny:   make(map[string]struct{}, len(cfg.HostDenylist)),
	}
	for _, h := range cfg.HostDenylist {
		g.deny[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Execute plans the research for a gap, runs every task and persists the
// findings. Search failures degrade to empty results.
func (g *Gatherer) Execute(ctx context.Context, ticketID, question string, missing model.MissingFacts) *model.SearchOutcome {
	tasks := g.Plan(ctx, ticketID, question, missing)
	results := g.run(ctx, ticketID, tasks)

	out := &model.SearchOutcome{Tasks: tasks}
	for i, task := range tasks {
		if len(results[i]) == 0 {
			continue
		}
		for rank, res := range results[i] {
			out.Findings = append(out.Findings, model.Finding{
				TicketID: ticketID,
				Topic:    task.Topic,
				Query:    task.Query,
				Rank:     rank,
				Result:   res,
			})
		}
		out.SuccessfulSearches = append(out.SuccessfulSearches, model.SuccessfulSearch{
			Topic:       task.Topic,
			Query:       task.Query,
			Description: task.Description,
			ResultCount: len(results[i]),
		})
	}

	if len(out.Findings) == 0 {
		zap.L().Info("gatherer: no findings",
			zap.String("ticket_id", ticketID),
			zap.Int("tasks", len(tasks)),
		)
		return out
	}

	if g.sink != nil {
		if err := g.sink.BulkAppend(ctx, ticketID, out.Findings); err != nil {
			zap.L().Warn("gatherer: persist findings failed",
				zap.String("ticket_id", ticketID),
				zap.Error(err),
			)
		}
	}
	company := companyOf(missing)
	out.BackfillPrompt = BackfillPrompt(out.SuccessfulSearches, missing.MissingColumns, company)

	zap.L().Info("gatherer: research complete",
		zap.String("ticket_id", ticketID),
		zap.Int("tasks", len(tasks)),
		zap.Int("successful", len(out.SuccessfulSearches)),
		zap.Int("findings", len(out.Findings)),
	)
	return out
}

// run executes tasks and returns results indexed like tasks.
func (g *Gatherer) run(ctx context.Context, ticketID string, tasks []model.SearchTask) [][]model.SearchResult {
	results := make([][]model.SearchResult, len(tasks))
	if g.search == nil {
		return results
	}

	one := func(i int) {
		res, err := g.search.Search(ctx, tasks[i].Query, g.cfg.ResultLimit)
		if err != nil {
			zap.L().Warn("gatherer: search failed",
				zap.String("ticket_id", ticketID),
				zap.String("query", tasks[i].Query),
				zap.Error(err),
			)
			return
		}
		if len(res) > g.cfg.ResultLimit {
			res = res[:g.cfg.ResultLimit]
		}
		results[i] = res
	}

	if g.cfg.Concurrency <= 1 || len(tasks) < 2 {
		for i := range tasks {
			one(i)
		}
		return results
	}

	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)
	for i := range tasks {
		eg.Go(func() error {
			one(i)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}
