package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Origin records where a fact came from.
type Origin string

const (
	OriginDataset Origin = "dataset"
	OriginLLM     Origin = "llm"
	OriginScraper Origin = "scraper"
	OriginMixed   Origin = "mixed"
)

// Fact is a single resolved (concept, value) pair with provenance. Facts live
// only for the duration of one ticket.
type Fact struct {
	Concept          string   `json:"concept"`
	Value            any      `json:"value"`
	Origin           Origin   `json:"origin,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
	Sources          []string `json:"sources,omitempty"`
	Notes            string   `json:"notes,omitempty"`
	CandidateColumns []string `json:"candidate_columns,omitempty"`
}

var nonConceptChars = regexp.MustCompile(`[^a-z0-9]+`)

// CanonicalConcept lowercases s and collapses every run of non-alphanumeric
// characters into a single underscore ("Business Name" -> "business_name").
func CanonicalConcept(s string) string {
	c := nonConceptChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	return strings.Trim(c, "_")
}

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// Confidence returns a pointer to a clamped confidence value.
func Confidence(c float64) *float64 {
	v := ClampConfidence(c)
	return &v
}

// EffectiveConfidence returns the fact's confidence. Dataset facts are
// implicitly certain.
func (f Fact) EffectiveConfidence() float64 {
	if f.Confidence != nil {
		return ClampConfidence(*f.Confidence)
	}
	if f.Origin == OriginDataset {
		return 1
	}
	return 0
}

// ParseFact builds a Fact from a loosely shaped object decoded from model
// output. Accepted keys: concept|name|field|column, value|answer, origin,
// confidence, sources|source, notes|reasoning, candidate_columns|columns.
// Objects without a usable concept are rejected.
func ParseFact(obj map[string]any, defaultOrigin Origin) (Fact, bool) {
	raw := firstString(obj, "concept", "name", "field", "column")
	concept := CanonicalConcept(raw)
	if concept == "" {
		return Fact{}, false
	}

	value, ok := obj["value"]
	if !ok {
		value = obj["answer"]
	}

	f := Fact{
		Concept: concept,
		Value:   value,
		Origin:  defaultOrigin,
		Notes:   firstString(obj, "notes", "reasoning"),
	}
	if o := firstString(obj, "origin"); o != "" {
		switch Origin(strings.ToLower(o)) {
		case OriginDataset, OriginLLM, OriginScraper:
			f.Origin = Origin(strings.ToLower(o))
		}
	}
	if c, ok := toFloat(obj["confidence"]); ok {
		f.Confidence = Confidence(c)
	}
	f.Sources = stringList(obj["sources"])
	if len(f.Sources) == 0 {
		f.Sources = stringList(obj["source"])
	}
	f.CandidateColumns = stringList(obj["candidate_columns"])
	if len(f.CandidateColumns) == 0 {
		f.CandidateColumns = stringList(obj["columns"])
	}
	if col := firstString(obj, "column"); col != "" && len(f.CandidateColumns) == 0 {
		f.CandidateColumns = []string{col}
	}
	return f, true
}

// ParseFacts converts a list of loosely shaped objects into facts, dropping
// entries without a concept.
func ParseFacts(raw any, defaultOrigin Origin) []Fact {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var facts []Fact
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if f, ok := ParseFact(obj, defaultOrigin); ok {
			facts = append(facts, f)
		}
	}
	return facts
}

// AggregateOrigin reports the shared origin of facts, OriginMixed when they
// disagree, or "" for an empty list.
func AggregateOrigin(facts []Fact) Origin {
	var out Origin
	for _, f := range facts {
		if f.Origin == "" {
			continue
		}
		if out == "" {
			out = f.Origin
			continue
		}
		if out != f.Origin {
			return OriginMixed
		}
	}
	return out
}

// IsEmptyValue reports whether v carries no usable content: nil, a blank or
// whitespace-only string, or an empty list/map.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// FormatValue renders a fact value for prompts and logs.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{strings.TrimSpace(t)}
	case []string:
		return t
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
