package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/payload"
	"github.com/sells-group/enrich-cli/internal/record"
)

const (
	strategyLLM       = "llm"
	strategyHeuristic = "heuristic"
)

// selectColumns picks the columns relevant to question, preferring one model
// round and falling back to token matching.
func (r *Resolver) selectColumns(ctx context.Context, ticketID, question string, row record.Row) ([]string, string) {
	candidates := r.cfg.Catalog
	if len(candidates) == 0 {
		candidates = record.Columns(row)
	}
	idx := record.NewColumnIndex(candidates)

	if r.llm != nil {
		if cols := r.llmColumns(ctx, ticketID, question, idx); len(cols) > 0 {
			return cols, strategyLLM
		}
	}
	return HeuristicColumns(question, idx, r.cfg.Synonyms, r.cfg.MaxColumns), strategyHeuristic
}

func (r *Resolver) llmColumns(ctx context.Context, ticketID, question string, idx *record.ColumnIndex) []string {
	resp, err := r.llm.Generate(ctx, llm.Request{
		Agent:     "resolver.columns",
		System:    fmt.Sprintf(columnSystemPrompt, r.cfg.MaxColumns),
		Messages:  llm.User(fmt.Sprintf(columnUserPrompt, question, strings.Join(idx.Columns(), "\n"))),
		MaxTokens: r.cfg.MaxTokens,
	})
	if err != nil {
		zap.L().Warn("resolver: column selection failed, using heuristic",
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
		return nil
	}

	var names []string
	if obj, ok := payload.First(resp, "columns"); ok {
		names = stringsOf(obj["columns"])
	}

	var out []string
	seen := make(map[string]bool)
	for _, name := range names {
		col, ok := idx.Resolve(name)
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		out = append(out, col)
		if len(out) == r.cfg.MaxColumns {
			break
		}
	}
	return out
}

// HeuristicColumns matches question tokens against synonyms and column
// names. A column matches when every one of its tokens appears in the
// question; a synonym matches when every token of its phrase does.
func HeuristicColumns(question string, idx *record.ColumnIndex, synonyms map[string]string, limit int) []string {
	qTokens := record.Tokens(question)
	if len(qTokens) == 0 {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(col string) {
		if seen[col] {
			return
		}
		seen[col] = true
		out = append(out, col)
	}

	phrases := make([]string, 0, len(synonyms))
	for p := range synonyms {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)
	for _, p := range phrases {
		pt := record.Tokens(p)
		if len(pt) == 0 || !record.Subset(pt, qTokens) {
			continue
		}
		if col, ok := idx.Resolve(synonyms[p]); ok {
			add(col)
		}
	}

	for _, col := range idx.Columns() {
		ct := idx.ColumnTokens(col)
		if len(ct) > 0 && record.Subset(ct, qTokens) {
			add(col)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
