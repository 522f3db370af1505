package rowstore

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/record"
)

var selectRe = regexp.MustCompile(`(?is)^\s*select\s+(\*|[\w\s,]+?)\s+from\s+"?(\w+)"?\s+` +
	`where\s+"?(\w+)"?\s*=\s*'((?:[^']|'')*)'(?:\s+limit\s+(\d+))?\s*;?\s*$`)

// ErrUnsupported is returned for statements outside the supported grammar.
var ErrUnsupported = eris.New("rowstore: only SELECT ... WHERE <col> = '<value>' [LIMIT n] is supported")

// ErrRecordNotFound is returned by ApplyUpdate when no row has the key.
var ErrRecordNotFound = eris.New("rowstore: record not found")

// Table is an in-memory dataset loaded from a CSV or XLSX file. Writes go
// back to the file.
type Table struct {
	mu      sync.RWMutex
	path    string
	name    string
	header  []string
	lookup  map[string]string
	rows    [][]string
	isExcel bool
}

// OpenTable loads path. The format follows the extension (.xlsx or CSV);
// name is the table name statements must use.
func OpenTable(path, name string) (*Table, error) {
	if name == "" {
		name = "dataset"
	}
	t := &Table{
		path:    path,
		name:    name,
		isExcel: strings.EqualFold(filepath.Ext(path), ".xlsx"),
	}

	var (
		all [][]string
		err error
	)
	if t.isExcel {
		all, err = readXLSX(path)
	} else {
		all, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, eris.Errorf("rowstore: %s has no header row", path)
	}

	t.header = all[0]
	t.lookup = make(map[string]string, len(t.header))
	for _, h := range t.header {
		t.lookup[strings.ToLower(h)] = h
	}
	for _, r := range all[1:] {
		t.rows = append(t.rows, pad(r, len(t.header)))
	}
	return t, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rowstore: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "rowstore: read csv %s", path)
	}
	if len(all) > 0 && len(all[0]) > 0 {
		all[0][0] = strings.TrimPrefix(all[0][0], "\ufeff")
	}
	return all, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rowstore: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("rowstore: %s has no sheets", path)
	}
	var all [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.String()
		}
		all = append(all, cells)
	}
	return all, nil
}

func pad(r []string, n int) []string {
	if len(r) >= n {
		return r[:n]
	}
	out := make([]string, n)
	copy(out, r)
	return out
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// ResolveColumn maps name to the header spelling, ignoring case.
func (t *Table) ResolveColumn(name string) (string, error) {
	col, ok := t.lookup[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", eris.Errorf("rowstore: column %q not found in %s", name, t.name)
	}
	return col, nil
}

func (t *Table) index(col string) int {
	for i, h := range t.header {
		if h == col {
			return i
		}
	}
	return -1
}

// Run implements Executor.
func (t *Table) Run(_ context.Context, stmt string) ([]record.Row, error) {
	m := selectRe.FindStringSubmatch(stmt)
	if m == nil {
		return nil, ErrUnsupported
	}
	if !strings.EqualFold(m[2], t.name) {
		return nil, eris.Errorf("rowstore: unknown table %q, expected %q", m[2], t.name)
	}
	whereCol, err := t.ResolveColumn(m[3])
	if err != nil {
		return nil, err
	}
	selected, err := t.resolveSelect(m[1])
	if err != nil {
		return nil, err
	}
	want := strings.ReplaceAll(m[4], "''", "'")
	limit := -1
	if m[5] != "" {
		limit, _ = strconv.Atoi(m[5])
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	wi := t.index(whereCol)
	var out []record.Row
	for _, r := range t.rows {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if r[wi] != want {
			continue
		}
		out = append(out, t.project(r, selected))
	}
	return out, nil
}

func (t *Table) resolveSelect(selection string) ([]string, error) {
	selection = strings.TrimSpace(selection)
	if selection == "*" {
		return t.header, nil
	}
	var cols []string
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		col, err := t.ResolveColumn(part)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return nil, eris.New("rowstore: no columns in SELECT clause")
	}
	return cols, nil
}

func (t *Table) project(r []string, cols []string) record.Row {
	row := make(record.Row, len(cols))
	for _, c := range cols {
		row[c] = r[t.index(c)]
	}
	return row
}

// ApplyUpdate sets columns on the row whose pk equals id and rewrites the
// file. Column names are resolved case-insensitively. When the file cannot
// be rewritten the rows are restored, so memory never runs ahead of disk.
func (t *Table) ApplyUpdate(pk, id string, updates map[string]any) error {
	keyCol, err := t.ResolveColumn(pk)
	if err != nil {
		return err
	}
	resolved := make(map[int]string, len(updates))
	for name, v := range updates {
		col, err := t.ResolveColumn(name)
		if err != nil {
			return err
		}
		resolved[t.index(col)] = model.FormatValue(v)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ki := t.index(keyCol)
	prior := make(map[int][]string)
	for n, r := range t.rows {
		if r[ki] != id {
			continue
		}
		prior[n] = append([]string(nil), r...)
		for i, v := range resolved {
			r[i] = v
		}
	}
	if len(prior) == 0 {
		return eris.Wrapf(ErrRecordNotFound, "%s = %s", keyCol, id)
	}
	if err := t.save(); err != nil {
		for n, r := range prior {
			t.rows[n] = r
		}
		return err
	}
	return nil
}

// save writes to a sibling temp file and renames it over the original.
func (t *Table) save() error {
	tmp := t.path + ".tmp"
	var err error
	if t.isExcel {
		err = t.saveXLSX(tmp)
	} else {
		err = t.saveCSV(tmp)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return eris.Wrap(os.Rename(tmp, t.path), "rowstore: replace dataset file")
}

func (t *Table) saveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "rowstore: create temp csv")
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.header); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "rowstore: write header")
	}
	if err := w.WriteAll(t.rows); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "rowstore: write rows")
	}
	return eris.Wrap(f.Close(), "rowstore: close temp csv")
}

func (t *Table) saveXLSX(path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(t.name)
	if err != nil {
		return eris.Wrap(err, "rowstore: add sheet")
	}
	for _, r := range append([][]string{t.header}, t.rows...) {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	return eris.Wrap(f.Save(path), "rowstore: save xlsx")
}

// Columns implements Browser.
func (t *Table) Columns(context.Context) ([]string, error) {
	return append([]string(nil), t.header...), nil
}

// Count implements Browser.
func (t *Table) Count(context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows), nil
}

// Page implements Browser.
func (t *Table) Page(_ context.Context, offset, limit int) ([]record.Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(t.rows) {
		return nil, nil
	}
	end := len(t.rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]record.Row, 0, end-offset)
	for _, r := range t.rows[offset:end] {
		out = append(out, t.project(r, t.header))
	}
	return out, nil
}
