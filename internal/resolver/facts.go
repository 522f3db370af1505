package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/payload"
	"github.com/sells-group/enrich-cli/internal/record"
)

// datasetFacts reads each column from row. Columns are resolved against the
// row's keys so catalog names need not match case. It returns the facts for
// non-empty values and the columns that had none.
func datasetFacts(row record.Row, columns []string) ([]model.Fact, []string) {
	rowIdx := record.NewColumnIndex(record.Columns(row))
	var facts []model.Fact
	var missing []string
	for _, col := range columns {
		key, ok := rowIdx.Resolve(col)
		if !ok {
			missing = append(missing, col)
			continue
		}
		v := row[key]
		if isBlank(v) {
			missing = append(missing, col)
			continue
		}
		facts = append(facts, model.Fact{
			Concept:          model.CanonicalConcept(col),
			Value:            v,
			Origin:           model.OriginDataset,
			Confidence:       model.Confidence(1),
			CandidateColumns: []string{col},
		})
	}
	return facts, missing
}

func isBlank(v any) bool {
	if s, ok := v.(string); ok {
		return record.IsMissingText(s)
	}
	return model.IsEmptyValue(v)
}

// usableFacts drops facts whose value is null, blank or a placeholder.
func usableFacts(facts []model.Fact) []model.Fact {
	out := facts[:0:0]
	for _, f := range facts {
		if !isBlank(f.Value) {
			out = append(out, f)
		}
	}
	return out
}

// declaredStatus reads an explicit status from a model payload. Unknown or
// absent values yield "".
func declaredStatus(obj map[string]any) model.AnswerStatus {
	s, _ := obj["status"].(string)
	switch st := model.AnswerStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case model.StatusAnswered, model.StatusMissingValues, model.StatusUnknownQuestion, model.StatusRecordNotFound:
		return st
	}
	return ""
}

// inferFacts asks the model to read the record when the selected columns
// were empty. It returns the facts with usable values and the status the
// model declared, if any. Failures yield neither.
func (r *Resolver) inferFacts(ctx context.Context, ticketID, question string, columns []string, row record.Row) ([]model.Fact, model.AnswerStatus) {
	resp, err := r.llm.Generate(ctx, llm.Request{
		Agent:     "resolver.facts",
		System:    factSystemPrompt,
		Messages:  llm.User(fmt.Sprintf(factUserPrompt, question, strings.Join(columns, ", "), snapshot(row))),
		MaxTokens: r.cfg.MaxTokens,
	})
	if err != nil {
		zap.L().Warn("resolver: fact extraction failed",
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
		return nil, ""
	}
	obj, ok := payload.First(resp, "facts")
	if !ok {
		if obj, ok = payload.First(resp, "status"); ok {
			return nil, declaredStatus(obj)
		}
		return nil, ""
	}
	return usableFacts(model.ParseFacts(obj["facts"], model.OriginLLM)), declaredStatus(obj)
}

// answersFor keys each fact's value by the column it names: a resolvable
// candidate column, the concept itself, or the uppercase concept.
func answersFor(facts []model.Fact, idx *record.ColumnIndex) map[string]any {
	out := make(map[string]any, len(facts))
	for _, f := range facts {
		out[answerKey(f, idx)] = f.Value
	}
	return out
}

func answerKey(f model.Fact, idx *record.ColumnIndex) string {
	for _, c := range f.CandidateColumns {
		if col, ok := idx.Resolve(c); ok {
			return col
		}
	}
	if col, ok := idx.Resolve(f.Concept); ok {
		return col
	}
	if len(f.CandidateColumns) > 0 {
		return strings.ToUpper(f.CandidateColumns[0])
	}
	return strings.ToUpper(f.Concept)
}

// sourcesFor attributes sources per concept: the fact's own, else the
// payload's per-concept entry, else the payload-wide list.
func sourcesFor(facts []model.Fact, raw any) map[string][]string {
	byConcept := map[string][]string{}
	var shared []string
	switch t := raw.(type) {
	case map[string]any:
		for k, v := range t {
			if list := stringsOf(v); len(list) > 0 {
				byConcept[model.CanonicalConcept(k)] = list
			}
		}
	default:
		shared = stringsOf(t)
	}

	out := make(map[string][]string)
	for _, f := range facts {
		switch {
		case len(f.Sources) > 0:
			out[f.Concept] = f.Sources
		case len(byConcept[f.Concept]) > 0:
			out[f.Concept] = byConcept[f.Concept]
		case len(shared) > 0:
			out[f.Concept] = shared
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// snapshot renders row as indented JSON for prompts.
func snapshot(row record.Row) string {
	if len(row) == 0 {
		return "{}"
	}
	b, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return fmt.Sprint(row)
	}
	return string(b)
}
