package gatherer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/payload"
	"github.com/sells-group/enrich-cli/internal/record"
)

const planSystemPrompt = `You plan web searches that find missing facts about a business. Respond with one task per line in the form: topic | query | description. Use {company} where the business name belongs. Propose at most %d tasks and nothing else.`

const planUserPrompt = `Question: %s
Business: %s
Missing columns: %s
Known context:
%s`

// Plan composes the ordered search tasks for a gap: a general search, one
// site-scoped search per candidate host, model-proposed tasks, then one task
// per missing column or a fallback. Duplicate queries are dropped.
func (g *Gatherer) Plan(ctx context.Context, ticketID, question string, missing model.MissingFacts) []model.SearchTask {
	question = strings.TrimSpace(question)
	company := companyOf(missing)

	var tasks []model.SearchTask
	seen := make(map[string]bool)
	add := func(t model.SearchTask) {
		t.Query = strings.Join(strings.Fields(t.Query), " ")
		key := strings.ToLower(t.Query)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		tasks = append(tasks, t)
	}

	general := question
	if company != "" {
		general = quote(company) + " " + question
	}
	add(model.SearchTask{
		Query:       general,
		Topic:       "general",
		Description: "General context gathering for unanswered question",
	})

	for _, host := range g.hosts(missing.CandidateURLs) {
		add(model.SearchTask{
			Query:       "site:" + host + " " + question,
			Topic:       host,
			Description: fmt.Sprintf("Search %s for details relevant to the question", host),
		})
	}

	for _, t := range g.llmTasks(ctx, ticketID, question, company, missing) {
		add(t)
	}

	for _, col := range missing.MissingColumns {
		parts := []string{question, record.Humanize(col)}
		if company != "" {
			parts = append([]string{quote(company)}, parts...)
		}
		add(model.SearchTask{
			Query:       strings.Join(parts, " "),
			Topic:       col,
			Description: fmt.Sprintf("Find supporting evidence for missing column '%s'", col),
		})
	}
	if len(missing.MissingColumns) == 0 && len(missing.CandidateURLs) == 0 {
		add(model.SearchTask{
			Query:       question,
			Topic:       "fallback",
			Description: "Broad search without identity scoping",
		})
	}
	return tasks
}

// hosts returns the distinct hosts of urls that are not denylisted.
func (g *Gatherer) hosts(urls []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, u := range urls {
		h := record.Host(u)
		if h == "" || seen[h] || g.denied(h) {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

func (g *Gatherer) denied(host string) bool {
	for d := range g.deny {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (g *Gatherer) llmTasks(ctx context.Context, ticketID, question, company string, missing model.MissingFacts) []model.SearchTask {
	if g.llm == nil {
		return nil
	}
	business := company
	if business == "" {
		business = "(unknown)"
	}
	resp, err := g.llm.Generate(ctx, llm.Request{
		Agent:  "gatherer.plan",
		System: fmt.Sprintf(planSystemPrompt, g.cfg.MaxLLMTasks),
		Messages: llm.User(fmt.Sprintf(planUserPrompt,
			question, business, strings.Join(missing.MissingColumns, ", "), describeContext(missing.Context))),
		MaxTokens: g.cfg.MaxTokens,
	})
	if err != nil {
		zap.L().Warn("gatherer: task planning failed",
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
		return nil
	}
	tasks := ParseTaskLines(payload.Text(resp), company)
	if len(tasks) > g.cfg.MaxLLMTasks {
		tasks = tasks[:g.cfg.MaxLLMTasks]
	}
	return tasks
}

var (
	listMarker  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
	placeholder = regexp.MustCompile(`(?i)\{\s*(?:company|company_name|business|business_name)\s*\}`)
)

// ParseTaskLines reads "topic | query | description" lines, substituting
// company placeholders. Lines without a query are skipped.
func ParseTaskLines(text, company string) []model.SearchTask {
	var out []model.SearchTask
	for _, line := range strings.Split(payload.StripFences(text), "\n") {
		line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(placeholder.ReplaceAllString(parts[i], company))
		}
		query := strings.Join(strings.Fields(parts[1]), " ")
		if query == "" || strings.EqualFold(parts[0], "topic") {
			continue
		}
		t := model.SearchTask{Topic: parts[0], Query: query}
		if len(parts) > 2 {
			t.Description = strings.Join(parts[2:], " | ")
		}
		if t.Topic == "" {
			t.Topic = "llm"
		}
		out = append(out, t)
	}
	return out
}

func companyOf(missing model.MissingFacts) string {
	return record.CompanyName(missing.Context)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}

func describeContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, col := range record.Columns(ctx) {
		fmt.Fprintf(&b, "%s: %v\n", col, ctx[col])
	}
	return strings.TrimRight(b.String(), "\n")
}
