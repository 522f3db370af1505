// Package pipeline sequences the enrichment agents for one ticket: resolve,
// gather evidence, reconcile facts and propose schema changes.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/observe"
	"github.com/sells-group/enrich-cli/internal/store"
)

// Resolver answers questions from the dataset and from search findings.
type Resolver interface {
	Answer(ctx context.Context, ticketID, question, recordID string) *model.Answer
	IncorporateFindings(ctx context.Context, ticketID, question, recordID string, findings []model.Finding, recordCtx map[string]any) (*model.Answer, bool)
}

// Gatherer researches data gaps.
type Gatherer interface {
	Execute(ctx context.Context, ticketID, question string, missing model.MissingFacts) *model.SearchOutcome
}

// Reconciler writes facts to the record.
type Reconciler interface {
	Apply(ctx context.Context, ticketID, recordID string, input any) *model.EnrichmentSummary
}

// Proposer designs migrations for escalated facts.
type Proposer interface {
	Propose(ctx context.Context, ticketID string, esc *model.Escalation) *model.SchemaProposal
}

// Flagger records unresolved data gaps.
type Flagger interface {
	FlagMissing(ctx context.Context, ticketID, question string, facts model.MissingFacts) error
}

// Deps are the pipeline's collaborators. The first five are required.
type Deps struct {
	Resolver   Resolver
	Gatherer   Gatherer
	Reconciler Reconciler
	Proposer   Proposer
	Flagger    Flagger

	// Store records ticket runs when set.
	Store store.Store
	// Observer receives ticket lifecycle events when set.
	Observer observe.Observer
}

// Pipeline is the ticket orchestrator.
type Pipeline struct {
	deps Deps
	obs  *observe.Safe
}

// New validates deps and returns a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Resolver == nil:
		return nil, eris.New("pipeline: resolver is required")
	case deps.Gatherer == nil:
		return nil, eris.New("pipeline: gatherer is required")
	case deps.Reconciler == nil:
		return nil, eris.New("pipeline: reconciler is required")
	case deps.Proposer == nil:
		return nil, eris.New("pipeline: proposer is required")
	case deps.Flagger == nil:
		return nil, eris.New("pipeline: missing-data flagger is required")
	}
	return &Pipeline{deps: deps, obs: observe.NewSafe(deps.Observer)}, nil
}

// Process runs a ticket through the agent chain. It always returns a result;
// collaborator failures are absorbed by the agents.
func (p *Pipeline) Process(ctx context.Context, t model.Ticket) *model.TicketResult {
	log := zap.L().With(zap.String("ticket_id", t.ID), zap.String("record_id", t.RecordID))
	start := time.Now()
	p.obs.Emit(t.ID, "ticket_received", map[string]any{"question": t.Question, "record_id": t.RecordID})

	ans := p.deps.Resolver.Answer(ctx, t.ID, t.Question, t.RecordID)
	res := fromAnswer(t, ans)

	if ans.Status != model.StatusAnswered {
		p.research(ctx, t, ans, res)
	}

	if input := enrichmentInput(t, res); input != nil {
		res.Update = p.deps.Reconciler.Apply(ctx, t.ID, t.RecordID, input)
		if res.Update != nil && res.Update.Escalated != nil {
			res.SchemaProposal = p.deps.Proposer.Propose(ctx, t.ID, res.Update.Escalated)
		}
	}

	res.StartedAt = start.UTC()
	res.DurationMs = time.Since(start).Milliseconds()
	p.obs.Emit(t.ID, "ticket_completed", map[string]any{
		"status":       res.Status,
		"prior_status": res.PriorStatus,
		"duration_ms":  res.DurationMs,
	})
	log.Info("pipeline: ticket processed",
		zap.String("status", string(res.Status)),
		zap.Int("findings", res.ScraperFindings),
		zap.Int64("duration_ms", res.DurationMs),
	)
	return res
}

// research runs the evidence gatherer for an unanswered ticket and folds a
// successful resolution back into res.
func (p *Pipeline) research(ctx context.Context, t model.Ticket, ans *model.Answer, res *model.TicketResult) {
	missing := ans.Missing(string(ans.Status))
	outcome := p.deps.Gatherer.Execute(ctx, t.ID, t.Question, missing)
	if outcome == nil {
		return
	}
	res.ScraperTasks = outcome.Tasks
	res.ScraperFindings = len(outcome.Findings)
	res.SuccessfulSearches = outcome.SuccessfulSearches
	res.BackfillPrompt = outcome.BackfillPrompt

	resolved, ok := p.deps.Resolver.IncorporateFindings(ctx, t.ID, t.Question, t.RecordID, outcome.Findings, ans.Context)
	if !ok || resolved == nil {
		missing.Reason = "unresolved_after_search"
		if err := p.deps.Flagger.FlagMissing(ctx, t.ID, t.Question, missing); err != nil {
			zap.L().Warn("pipeline: flag unresolved ticket failed", zap.String("ticket_id", t.ID), zap.Error(err))
		}
		return
	}

	res.PriorStatus = res.Status
	res.Status = resolved.Status
	res.Facts = resolved.Facts
	res.Answers = resolved.Answers
	res.AnswerOrigin = resolved.AnswerOrigin
	res.Sources = resolved.Sources
	res.Notes = resolved.Notes
	res.MissingColumns = nil
	if len(resolved.CandidateURLs) > 0 {
		res.CandidateURLs = resolved.CandidateURLs
	}
	if len(resolved.Context) > 0 {
		res.Context = resolved.Context
	}
}

func fromAnswer(t model.Ticket, ans *model.Answer) *model.TicketResult {
	return &model.TicketResult{
		TicketID:       t.ID,
		Question:       t.Question,
		RecordID:       t.RecordID,
		Status:         ans.Status,
		Answers:        ans.Answers,
		Facts:          ans.Facts,
		MissingColumns: ans.MissingColumns,
		CandidateURLs:  ans.CandidateURLs,
		Context:        ans.Context,
		AnswerOrigin:   ans.AnswerOrigin,
		Sources:        ans.Sources,
		Notes:          ans.Notes,
	}
}

// enrichmentInput picks what to reconcile: explicit ticket facts, then the
// ticket's field map, then derived facts that did not come from the dataset
// itself. Dataset facts already match the row, so writing them back would
// report an update that changed nothing. It returns nil when there is
// nothing to write.
func enrichmentInput(t model.Ticket, res *model.TicketResult) any {
	if len(t.Facts) > 0 {
		return t.Facts
	}
	if len(t.Fields) > 0 {
		return t.Fields
	}
	var derived []model.Fact
	for _, f := range res.Facts {
		if f.Origin != model.OriginDataset {
			derived = append(derived, f)
		}
	}
	if len(derived) == 0 {
		return nil
	}
	return derived
}

// Run processes a ticket and records the run in the configured store. The
// returned run has no ID when no store is configured.
func (p *Pipeline) Run(ctx context.Context, t model.Ticket) (*model.TicketRun, error) {
	if p.deps.Store == nil {
		now := time.Now().UTC()
		res := p.Process(ctx, t)
		return &model.TicketRun{
			Ticket:    t,
			Status:    model.TicketComplete,
			Result:    res,
			CreatedAt: now,
			UpdatedAt: time.Now().UTC(),
		}, nil
	}

	run, err := p.deps.Store.CreateTicket(ctx, t)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create ticket run")
	}
	if err := p.deps.Store.UpdateStatus(ctx, run.ID, model.TicketRunning, ""); err != nil {
		zap.L().Warn("pipeline: failed to update status", zap.String("run_id", run.ID), zap.Error(err))
	}

	res := p.Process(ctx, t)
	run.Result = res
	run.Status = model.TicketComplete
	run.UpdatedAt = time.Now().UTC()

	if err := p.deps.Store.SaveResult(ctx, run.ID, res); err != nil {
		zap.L().Error("pipeline: failed to save result", zap.String("run_id", run.ID), zap.Error(err))
		run.Status = model.TicketFailed
		run.Error = err.Error()
		if statusErr := p.deps.Store.UpdateStatus(ctx, run.ID, model.TicketFailed, err.Error()); statusErr != nil {
			zap.L().Warn("pipeline: failed to update status", zap.String("run_id", run.ID), zap.Error(statusErr))
		}
	}
	return run, nil
}
