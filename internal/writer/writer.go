// Package writer applies reconciled facts to the system of record.
package writer

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/rowstore"
)

// ErrRecordNotFound is returned when no row matched the record id.
var ErrRecordNotFound = eris.New("writer: record not found")

// Update is one applied write, kept for inspection.
type Update struct {
	RecordID string         `json:"record_id"`
	Payload  map[string]any `json:"payload"`
}

// Null accepts every update and writes nothing.
type Null struct{}

// UpdateRecord implements reconciler.RecordWriter.
func (Null) UpdateRecord(context.Context, string, map[string]any) error { return nil }

// Table writes updates back into a CSV or XLSX file.
type Table struct {
	table      *rowstore.Table
	primaryKey string

	mu      sync.Mutex
	history []Update
}

// NewTable creates a writer for t keyed by primaryKey.
func NewTable(t *rowstore.Table, primaryKey string) *Table {
	return &Table{table: t, primaryKey: primaryKey}
}

// UpdateRecord resolves each field against the file's header, then rewrites
// the matching row.
func (w *Table) UpdateRecord(_ context.Context, recordID string, payload map[string]any) error {
	if len(payload) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	resolved := make(map[string]any, len(payload))
	for field, v := range payload {
		col, err := w.table.ResolveColumn(field)
		if err != nil {
			return eris.Wrapf(err, "writer: resolve %s", field)
		}
		resolved[col] = v
	}

	if err := w.table.ApplyUpdate(w.primaryKey, recordID, resolved); err != nil {
		if eris.Is(err, rowstore.ErrRecordNotFound) {
			return eris.Wrapf(ErrRecordNotFound, "writer: %s", recordID)
		}
		return eris.Wrapf(err, "writer: update %s", recordID)
	}
	w.history = append(w.history, Update{RecordID: recordID, Payload: resolved})
	return nil
}

// History returns a copy of the applied updates in order.
func (w *Table) History() []Update {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Update(nil), w.history...)
}
