// Package proposer turns escalated facts into reviewable schema migrations.
// It never applies them.
package proposer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/payload"
)

// MigrationWriter persists a named migration and returns where it went.
type MigrationWriter interface {
	Write(ctx context.Context, name string, statements []string) (string, error)
}

// Config holds proposer settings.
type Config struct {
	Table     string
	MaxTokens int64
}

// Option configures a Proposer.
type Option func(*Proposer)

// WithLLM lets the model design the columns.
func WithLLM(c llm.Client) Option {
	return func(p *Proposer) { p.llm = c }
}

// Proposer is the schema proposer.
type Proposer struct {
	writer MigrationWriter
	llm    llm.Client
	cfg    Config
}

// New creates a Proposer.
func New(writer MigrationWriter, cfg Config, opts ...Option) *Proposer {
	if cfg.Table == "" {
		cfg.Table = "dataset"
	}
	p := &Proposer{writer: writer, cfg: cfg}
	for _, o := range opts {
		o(p)
	}
	return p
}

const maxSampleLen = 80

type sample struct {
	name  string
	value any
}

// Propose designs one nullable column per escalated concept and writes the
// migration. Without unmatched facts the proposal is empty and nothing is
// written.
func (p *Proposer) Propose(ctx context.Context, ticketID string, esc *model.Escalation) *model.SchemaProposal {
	proposal := &model.SchemaProposal{
		TicketID:            ticketID,
		Columns:             []model.ColumnProposal{},
		MigrationStatements: []string{},
	}

	samples := collect(esc)
	if len(samples) == 0 {
		proposal.Notes = "No unmatched facts supplied"
		return proposal
	}

	cols := p.llmColumns(ctx, ticketID, samples)
	if len(cols) == 0 {
		cols = staticColumns(samples)
	}
	proposal.Columns = cols
	for _, c := range cols {
		proposal.MigrationStatements = append(proposal.MigrationStatements, Statement(p.cfg.Table, c))
	}

	name := "ticket_" + strings.ToLower(ticketID)
	if p.writer == nil {
		proposal.Notes = "No migration writer configured"
		return proposal
	}
	path, err := p.writer.Write(ctx, name, proposal.MigrationStatements)
	if err != nil {
		zap.L().Warn("proposer: write migration failed",
			zap.String("ticket_id", ticketID),
			zap.String("migration", name),
			zap.Error(err),
		)
		proposal.Notes = "migration not written: " + err.Error()
		return proposal
	}
	proposal.MigrationPath = path

	zap.L().Info("proposer: migration proposed",
		zap.String("ticket_id", ticketID),
		zap.String("path", path),
		zap.Int("columns", len(cols)),
	)
	return proposal
}

// collect gathers named samples from unmatched facts, then unknown fields
// not already covered. Names are normalized and deduplicated.
func collect(esc *model.Escalation) []sample {
	if esc == nil {
		return nil
	}
	var out []sample
	seen := make(map[string]bool)
	add := func(raw string, v any) {
		name := NormalizeName(raw)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, sample{name: name, value: v})
	}
	for _, f := range esc.UnmatchedFacts {
		add(f.Concept, f.Value)
	}
	keys := make([]string, 0, len(esc.UnknownFields))
	for k := range esc.UnknownFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, esc.UnknownFields[k])
	}
	return out
}

// staticColumns infers a column per sample from its Go type.
func staticColumns(samples []sample) []model.ColumnProposal {
	out := make([]model.ColumnProposal, 0, len(samples))
	for _, s := range samples {
		out = append(out, model.ColumnProposal{
			Name:        s.name,
			DataType:    InferType(s.value),
			Nullable:    true,
			Description: Describe(s.value),
		})
	}
	return out
}

var (
	nameJunk   = regexp.MustCompile(`[^A-Z0-9_]+`)
	underscore = regexp.MustCompile(`_{2,}`)
	tableIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// columnTypes are the SQL types a proposed column may use.
var columnTypes = map[string]bool{
	"TEXT":      true,
	"INTEGER":   true,
	"NUMERIC":   true,
	"BOOLEAN":   true,
	"DATE":      true,
	"TIMESTAMP": true,
	"JSONB":     true,
}

// NormalizeName uppercases raw and reduces it to letters, digits and single
// underscores. Anything else becomes an underscore.
func NormalizeName(raw string) string {
	n := strings.ToUpper(strings.TrimSpace(raw))
	n = nameJunk.ReplaceAllString(n, "_")
	n = underscore.ReplaceAllString(n, "_")
	return strings.Trim(n, "_")
}

// NormalizeType returns dt uppercased when it is a known column type, or ""
// otherwise.
func NormalizeType(dt string) string {
	t := strings.ToUpper(strings.TrimSpace(dt))
	if columnTypes[t] {
		return t
	}
	return ""
}

// ValidTable reports whether table is a plain or schema-qualified identifier.
func ValidTable(table string) bool {
	return tableIdent.MatchString(table)
}

// InferType maps a sample value to a SQL type.
func InferType(v any) string {
	switch t := v.(type) {
	case bool:
		return "BOOLEAN"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "INTEGER"
	case float32, float64:
		return "NUMERIC"
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return "INTEGER"
		}
		return "NUMERIC"
	case map[string]any, []any, []string:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// Describe renders the sample-value description, truncating the sample.
func Describe(v any) string {
	r := repr(v)
	if len(r) > maxSampleLen {
		r = r[:maxSampleLen-3] + "..."
	}
	return "Inferred from sample value " + r
}

func repr(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	case map[string]any, []any, []string:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return model.FormatValue(t)
	}
}

// Statement renders the additive DDL for one column. The column name is
// normalized and an unknown type falls back to TEXT. Callers validate table
// with ValidTable.
func Statement(table string, c model.ColumnProposal) string {
	dt := NormalizeType(c.DataType)
	if dt == "" {
		dt = "TEXT"
	}
	return fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS "%s" %s;`, table, NormalizeName(c.Name), dt)
}

const columnSystemPrompt = `You design additive database columns for facts that have no home in the current schema. Respond with a JSON array of objects with keys name, data_type, nullable and description. Use upper snake case names and standard SQL types (TEXT, INTEGER, NUMERIC, BOOLEAN, DATE, TIMESTAMP, JSONB).`

func (p *Proposer) llmColumns(ctx context.Context, ticketID string, samples []sample) []model.ColumnProposal {
	if p.llm == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\nFacts without a column:\n", p.cfg.Table)
	for _, s := range samples {
		fmt.Fprintf(&b, "- %s = %s\n", s.name, repr(s.value))
	}
	resp, err := p.llm.Generate(ctx, llm.Request{
		Agent:     "proposer.columns",
		System:    columnSystemPrompt,
		Messages:  llm.User(b.String()),
		MaxTokens: p.cfg.MaxTokens,
	})
	if err != nil {
		zap.L().Warn("proposer: column design failed, inferring statically",
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
		return nil
	}
	known := make(map[string]any, len(samples))
	for _, s := range samples {
		known[s.name] = s.value
	}
	var out []model.ColumnProposal
	for _, c := range ParseColumns(payload.Extract(resp)) {
		v, ok := known[c.Name]
		if !ok {
			continue
		}
		if c.DataType == "" {
			c.DataType = InferType(v)
		}
		out = append(out, c)
	}
	return out
}

// ParseColumns reads column objects from model output, dropping unnamed and
// duplicate entries. A data type outside the known set is left empty.
func ParseColumns(objs []map[string]any) []model.ColumnProposal {
	var out []model.ColumnProposal
	seen := make(map[string]bool)
	for _, obj := range objs {
		raw, _ := obj["name"].(string)
		name := NormalizeName(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		c := model.ColumnProposal{Name: name, Nullable: true}
		if dt, ok := obj["data_type"].(string); ok {
			c.DataType = NormalizeType(dt)
		}
		if n, ok := obj["nullable"].(bool); ok {
			c.Nullable = n
		}
		if d, ok := obj["description"].(string); ok {
			c.Description = strings.TrimSpace(d)
		}
		out = append(out, c)
	}
	return out
}
