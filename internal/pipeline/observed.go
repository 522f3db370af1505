package pipeline

import (
	"context"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/observe"
)

// ObservedGatherer emits research lifecycle events around a Gatherer.
type ObservedGatherer struct {
	Gatherer
	obs *observe.Safe
}

// NewObservedGatherer wraps g.
func NewObservedGatherer(g Gatherer, o observe.Observer) *ObservedGatherer {
	return &ObservedGatherer{Gatherer: g, obs: observe.NewSafe(o)}
}

// Execute implements Gatherer.
func (g *ObservedGatherer) Execute(ctx context.Context, ticketID, question string, missing model.MissingFacts) *model.SearchOutcome {
	g.obs.Emit(ticketID, "scraper_started", map[string]any{
		"reason":          missing.Reason,
		"missing_columns": missing.MissingColumns,
		"candidate_urls":  missing.CandidateURLs,
	})
	out := g.Gatherer.Execute(ctx, ticketID, question, missing)
	payload := map[string]any{"tasks": 0, "findings": 0}
	if out != nil {
		payload["tasks"] = len(out.Tasks)
		payload["findings"] = len(out.Findings)
		payload["successful_searches"] = len(out.SuccessfulSearches)
	}
	g.obs.Emit(ticketID, "scraper_completed", payload)
	return out
}

// ObservedReconciler emits update lifecycle events around a Reconciler.
type ObservedReconciler struct {
	Reconciler
	obs *observe.Safe
}

// NewObservedReconciler wraps r.
func NewObservedReconciler(r Reconciler, o observe.Observer) *ObservedReconciler {
	return &ObservedReconciler{Reconciler: r, obs: observe.NewSafe(o)}
}

// Apply implements Reconciler.
func (r *ObservedReconciler) Apply(ctx context.Context, ticketID, recordID string, input any) *model.EnrichmentSummary {
	r.obs.Emit(ticketID, "update_started", map[string]any{"record_id": recordID})
	s := r.Reconciler.Apply(ctx, ticketID, recordID, input)
	if s != nil {
		r.obs.Emit(ticketID, "update_completed", map[string]any{
			"status":          s.Status,
			"applied_columns": s.AppliedColumns,
			"escalated":       s.Escalated != nil,
			"error":           nonEmpty(s.Error),
		})
	}
	return s
}

// ObservedProposer emits schema lifecycle events around a Proposer.
type ObservedProposer struct {
	Proposer
	obs *observe.Safe
}

// NewObservedProposer wraps p.
func NewObservedProposer(p Proposer, o observe.Observer) *ObservedProposer {
	return &ObservedProposer{Proposer: p, obs: observe.NewSafe(o)}
}

// Propose implements Proposer.
func (p *ObservedProposer) Propose(ctx context.Context, ticketID string, esc *model.Escalation) *model.SchemaProposal {
	p.obs.Emit(ticketID, "schema_escalated", nil)
	prop := p.Proposer.Propose(ctx, ticketID, esc)
	if prop != nil {
		names := make([]string, len(prop.Columns))
		for i, c := range prop.Columns {
			names[i] = c.Name
		}
		p.obs.Emit(ticketID, "schema_proposed", map[string]any{
			"columns":        names,
			"migration_path": nonEmpty(prop.MigrationPath),
		})
	}
	return prop
}

// Observe wraps the gatherer, reconciler and proposer of deps with observed
// decorators and sets the pipeline observer.
func Observe(deps Deps, o observe.Observer) Deps {
	if o == nil {
		return deps
	}
	if deps.Gatherer != nil {
		deps.Gatherer = NewObservedGatherer(deps.Gatherer, o)
	}
	if deps.Reconciler != nil {
		deps.Reconciler = NewObservedReconciler(deps.Reconciler, o)
	}
	if deps.Proposer != nil {
		deps.Proposer = NewObservedProposer(deps.Proposer, o)
	}
	deps.Observer = o
	return deps
}

// nonEmpty maps "" to nil so event sinks drop the key.
func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
