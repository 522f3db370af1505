package rowstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/enrich-cli/internal/record"
)

const sampleCSV = `BRIZO_ID,BUSINESS_NAME,WEBSITE,PHONE
abc,Cafe,https://example.com,
def,O'Malley's Pub,,555-0100
ghi,Cafe,,
`

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTable_PointQuery(t *testing.T) {
	t.Parallel()
	tbl, err := OpenTable(writeCSV(t, sampleCSV), "dataset")
	require.NoError(t, err)

	rows, err := tbl.Run(context.Background(), PointQuery(tbl, "dataset", "BRIZO_ID", "abc"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, record.Row{
		"BRIZO_ID":      "abc",
		"BUSINESS_NAME": "Cafe",
		"WEBSITE":       "https://example.com",
		"PHONE":         "",
	}, rows[0])
}

func TestTable_QuotedValue(t *testing.T) {
	t.Parallel()
	tbl, err := OpenTable(writeCSV(t, sampleCSV), "dataset")
	require.NoError(t, err)

	stmt := PointQuery(tbl, "dataset", "BUSINESS_NAME", "O'Malley's Pub")
	assert.Equal(t, "SELECT * FROM dataset WHERE BUSINESS_NAME = 'O''Malley''s Pub' LIMIT 1", stmt)

	rows, err := tbl.Run(context.Background(), stmt)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "def", rows[0]["BRIZO_ID"])
}

func TestTable_Run(t *testing.T) {
	t.Parallel()
	tbl, err := OpenTable(writeCSV(t, sampleCSV), "dataset")
	require.NoError(t, err)

	tests := []struct {
		name     string
		stmt     string
		wantLen  int
		wantKeys []string
		wantErr  string
	}{
		{name: "projection case-insensitive", stmt: "select business_name, Website from DATASET where brizo_id = 'abc';", wantLen: 1, wantKeys: []string{"BUSINESS_NAME", "WEBSITE"}},
		{name: "multiple matches", stmt: "SELECT * FROM dataset WHERE BUSINESS_NAME = 'Cafe'", wantLen: 2},
		{name: "limit", stmt: "SELECT * FROM dataset WHERE BUSINESS_NAME = 'Cafe' LIMIT 1", wantLen: 1},
		{name: "no match", stmt: "SELECT * FROM dataset WHERE BRIZO_ID = 'zzz' LIMIT 1", wantLen: 0},
		{name: "unknown table", stmt: "SELECT * FROM accounts WHERE BRIZO_ID = 'abc'", wantErr: "unknown table"},
		{name: "unknown column", stmt: "SELECT * FROM dataset WHERE NOPE = 'abc'", wantErr: "not found"},
		{name: "unknown projected column", stmt: "SELECT NOPE FROM dataset WHERE BRIZO_ID = 'abc'", wantErr: "not found"},
		{name: "unsupported", stmt: "DELETE FROM dataset", wantErr: "only SELECT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := tbl.Run(context.Background(), tt.stmt)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, rows, tt.wantLen)
			if tt.wantKeys != nil {
				assert.ElementsMatch(t, tt.wantKeys, record.Columns(rows[0]))
			}
		})
	}
}

func TestTable_ApplyUpdatePersists(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, sampleCSV)
	tbl, err := OpenTable(path, "dataset")
	require.NoError(t, err)

	require.NoError(t, tbl.ApplyUpdate("brizo_id", "abc", map[string]any{"phone": "555-0199", "BUSINESS_NAME": "Cafe Luna"}))

	reopened, err := OpenTable(path, "dataset")
	require.NoError(t, err)
	rows, err := reopened.Run(context.Background(), "SELECT PHONE, BUSINESS_NAME FROM dataset WHERE BRIZO_ID = 'abc'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "555-0199", rows[0]["PHONE"])
	assert.Equal(t, "Cafe Luna", rows[0]["BUSINESS_NAME"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestTable_ApplyUpdateErrors(t *testing.T) {
	t.Parallel()
	tbl, err := OpenTable(writeCSV(t, sampleCSV), "dataset")
	require.NoError(t, err)

	err = tbl.ApplyUpdate("BRIZO_ID", "missing", map[string]any{"PHONE": "1"})
	require.ErrorIs(t, err, ErrRecordNotFound)

	err = tbl.ApplyUpdate("BRIZO_ID", "abc", map[string]any{"NEW_METRIC": 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NEW_METRIC")
}

func TestTable_ApplyUpdateRestoresRowsWhenSaveFails(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	tbl, err := OpenTable(path, "dataset")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	err = tbl.ApplyUpdate("BRIZO_ID", "abc", map[string]any{"PHONE": "555-0199"})
	require.Error(t, err)

	rows, err := tbl.Run(context.Background(), "SELECT PHONE FROM dataset WHERE BRIZO_ID = 'abc'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0]["PHONE"])
}

func TestTable_Browse(t *testing.T) {
	t.Parallel()
	tbl, err := OpenTable(writeCSV(t, sampleCSV), "")
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, "dataset", tbl.Name())
	cols, err := tbl.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BRIZO_ID", "BUSINESS_NAME", "WEBSITE", "PHONE"}, cols)

	n, err := tbl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := tbl.Page(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "def", page[0]["BRIZO_ID"])

	page, err = tbl.Page(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestOpenTable_Errors(t *testing.T) {
	t.Parallel()
	_, err := OpenTable(filepath.Join(t.TempDir(), "missing.csv"), "dataset")
	require.Error(t, err)

	_, err = OpenTable(writeCSV(t, ""), "dataset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestTable_XLSX(t *testing.T) {
	t.Parallel()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, r := range [][]string{{"BRIZO_ID", "BUSINESS_NAME"}, {"abc", "Cafe"}} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "dataset.xlsx")
	require.NoError(t, f.Save(path))

	tbl, err := OpenTable(path, "dataset")
	require.NoError(t, err)
	require.NoError(t, tbl.ApplyUpdate("BRIZO_ID", "abc", map[string]any{"BUSINESS_NAME": "Cafe Luna"}))

	reopened, err := OpenTable(path, "dataset")
	require.NoError(t, err)
	rows, err := reopened.Run(context.Background(), PointQuery(reopened, "dataset", "BRIZO_ID", "abc"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cafe Luna", rows[0]["BUSINESS_NAME"])
}
