package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/gatherer"
	"github.com/sells-group/enrich-cli/internal/migration"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/proposer"
	"github.com/sells-group/enrich-cli/internal/reconciler"
	"github.com/sells-group/enrich-cli/internal/resolver"
	"github.com/sells-group/enrich-cli/internal/rowstore"
	"github.com/sells-group/enrich-cli/internal/search"
	"github.com/sells-group/enrich-cli/internal/sink"
	"github.com/sells-group/enrich-cli/internal/writer"
)

type harness struct {
	pipeline   *Pipeline
	table      *rowstore.Table
	migrations string
	events     *sink.EventLog
}

func newHarness(t *testing.T, csv string) *harness {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	table, err := rowstore.OpenTable(path, "dataset")
	require.NoError(t, err)
	cols, err := table.Columns(context.Background())
	require.NoError(t, err)

	flagger := sink.NewFlagger(filepath.Join(dir, "missing"))
	events := sink.NewEventLog(filepath.Join(dir, "logs"))
	migrations := filepath.Join(dir, "migrations")

	deps := Deps{
		Resolver:   resolver.New(table, flagger, resolver.Config{}, resolver.WithObserver(events)),
		Gatherer:   gatherer.New(search.Null{}, sink.NewEvidence(filepath.Join(dir, "scrapes")), gatherer.Config{}),
		Reconciler: reconciler.New(writer.NewTable(table, "BRIZO_ID"), sink.NewEscalator(filepath.Join(dir, "escalations")), reconciler.Config{AllowedColumns: cols}),
		Proposer:   proposer.New(migration.NewFile(migrations), proposer.Config{Table: "dataset"}),
		Flagger:    flagger,
	}
	p, err := New(Observe(deps, events))
	require.NoError(t, err)
	return &harness{pipeline: p, table: table, migrations: migrations, events: events}
}

const cafeCSV = "BRIZO_ID,BUSINESS_NAME,LOCATION_CITY\nabc,Cafe Example,Florence\nempty,,\n"

func TestEndToEnd_AnsweredFromDataset(t *testing.T) {
	t.Parallel()
	h := newHarness(t, cafeCSV)

	res := h.pipeline.Process(context.Background(), model.Ticket{ID: "T-A", Question: "What is the business name?", RecordID: "abc"})

	assert.Equal(t, model.StatusAnswered, res.Status)
	require.Len(t, res.Facts, 1)
	assert.Equal(t, "business_name", res.Facts[0].Concept)
	assert.Equal(t, "Cafe Example", res.Facts[0].Value)
	assert.Equal(t, model.OriginDataset, res.Facts[0].Origin)
	assert.Nil(t, res.Update)
	assert.FileExists(t, h.events.Path("T-A"))
}

func TestEndToEnd_MissingValues(t *testing.T) {
	t.Parallel()
	h := newHarness(t, cafeCSV)

	res := h.pipeline.Process(context.Background(), model.Ticket{ID: "T-B", Question: "What is the business name?", RecordID: "empty"})

	assert.Equal(t, model.StatusMissingValues, res.Status)
	assert.Contains(t, res.MissingColumns, "BUSINESS_NAME")
	assert.NotEmpty(t, res.ScraperTasks)
	assert.Zero(t, res.ScraperFindings)
}

func TestEndToEnd_SchemaMismatchProposesColumn(t *testing.T) {
	t.Parallel()
	h := newHarness(t, cafeCSV)

	res := h.pipeline.Process(context.Background(), model.Ticket{
		ID:       "T-C",
		Question: "What is the business name?",
		RecordID: "abc",
		Facts:    []model.Fact{{Concept: "new_metric", Value: 12.5}},
	})

	require.NotNil(t, res.Update)
	assert.Equal(t, model.SummarySkipped, res.Update.Status)
	require.NotNil(t, res.Update.Escalated)
	assert.Equal(t, "new_metric", res.Update.Escalated.UnmatchedFacts[0].Concept)

	require.NotNil(t, res.SchemaProposal)
	require.Len(t, res.SchemaProposal.Columns, 1)
	assert.Equal(t, "NEW_METRIC", res.SchemaProposal.Columns[0].Name)
	assert.Equal(t, "NUMERIC", res.SchemaProposal.Columns[0].DataType)
	assert.FileExists(t, res.SchemaProposal.MigrationPath)

	pending, err := migration.Pending(h.migrations)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEndToEnd_ExplicitFactsWritten(t *testing.T) {
	t.Parallel()
	h := newHarness(t, cafeCSV)

	res := h.pipeline.Process(context.Background(), model.Ticket{
		ID:       "T-E",
		Question: "What is the business name?",
		RecordID: "abc",
		Fields:   map[string]any{"location_city": "Siena"},
	})

	require.NotNil(t, res.Update)
	assert.Equal(t, model.SummaryUpdated, res.Update.Status)
	assert.Equal(t, []string{"LOCATION_CITY"}, res.Update.AppliedColumns)

	rows, err := h.table.Run(context.Background(), "SELECT LOCATION_CITY FROM dataset WHERE BRIZO_ID = 'abc'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Siena", rows[0]["LOCATION_CITY"])
}
