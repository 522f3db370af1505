package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/payload"
	"github.com/sells-group/enrich-cli/internal/record"
)

// maxEvidenceChars bounds each serialized finding in the prompt.
const maxEvidenceChars = 320

// IncorporateFindings asks the model to answer from search evidence. It
// returns false when no model is configured or no facts were resolved.
func (r *Resolver) IncorporateFindings(ctx context.Context, ticketID, question, recordID string, findings []model.Finding, recordCtx map[string]any) (*model.Answer, bool) {
	r.obs.Emit(ticketID, "scraper_findings_received", map[string]any{
		"record_id": recordID,
		"count":     len(findings),
	})
	if r.llm == nil {
		return nil, false
	}

	row := r.cached(ctx, ticketID, recordID)
	if len(recordCtx) == 0 {
		recordCtx = record.BuildContext(row, r.cfg.ContextColumns)
	}

	resp, err := r.llm.Generate(ctx, llm.Request{
		Agent:  "resolver.findings",
		System: findingsSystemPrompt,
		Messages: llm.User(fmt.Sprintf(findingsUserPrompt,
			question, snapshot(row), snapshot(recordCtx), SerializeFindings(findings))),
		MaxTokens: r.cfg.MaxTokens,
	})
	if err != nil {
		zap.L().Warn("resolver: evidence incorporation failed",
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
		r.obs.Emit(ticketID, "scraper_facts_resolved", map[string]any{"count": 0, "error": err.Error()})
		return nil, false
	}

	var facts []model.Fact
	var obj map[string]any
	if o, ok := payload.First(resp, "facts"); ok {
		obj = o
		facts = usableFacts(model.ParseFacts(obj["facts"], model.OriginScraper))
	} else if o, ok := payload.First(resp, "status"); ok {
		obj = o
	}
	declared := declaredStatus(obj)
	if declared != "" && declared != model.StatusAnswered {
		facts = nil
	}
	r.obs.Emit(ticketID, "scraper_facts_resolved", map[string]any{
		"count":  len(facts),
		"status": obj["status"],
	})
	if len(facts) == 0 {
		return nil, false
	}

	columns := r.cfg.Catalog
	if len(columns) == 0 {
		columns = record.Columns(row)
	}
	idx := record.NewColumnIndex(columns)

	ans := &model.Answer{
		TicketID:      ticketID,
		Question:      question,
		RecordID:      recordID,
		Status:        model.StatusAnswered,
		Facts:         facts,
		Answers:       answersFor(facts, idx),
		CandidateURLs: record.CandidateURLs(row, r.cfg.CandidateURLFields),
		Context:       recordCtx,
		AnswerOrigin:  model.OriginScraper,
		Sources:       sourcesFor(facts, obj["sources"]),
	}
	if notes, ok := obj["notes"].(string); ok {
		ans.Notes = strings.TrimSpace(notes)
	}
	return ans, true
}

// SerializeFindings renders one truncated line per finding.
func SerializeFindings(findings []model.Finding) string {
	if len(findings) == 0 {
		return "(no evidence)"
	}
	var b strings.Builder
	for _, f := range findings {
		parts := []string{"topic=" + f.Topic, "query=" + f.Query}
		if u := f.Result.URL(); u != "" {
			parts = append(parts, "url="+u)
		}
		if t := f.Result.Title(); t != "" {
			parts = append(parts, "title="+t)
		}
		if s := f.Result.Snippet(); s != "" {
			parts = append(parts, "snippet="+s)
		}
		line := strings.Join(parts, " | ")
		b.WriteString("- ")
		b.WriteString(truncate(line, maxEvidenceChars))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
