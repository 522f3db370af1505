// Package rowstore executes the narrow read statements the resolver issues
// against a dataset: CSV/XLSX files held in memory, Postgres or SQLite.
package rowstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/enrich-cli/internal/record"
)

// Executor runs a single SELECT statement and returns matching rows.
type Executor interface {
	Run(ctx context.Context, stmt string) ([]record.Row, error)
}

// Quoter is implemented by executors whose SQL dialect needs quoted
// identifiers to preserve case.
type Quoter interface {
	QuoteIdent(name string) string
}

// PointQuery builds the statement that fetches one row by primary key.
// Single quotes in id are doubled.
func PointQuery(exec Executor, table, pk, id string) string {
	if q, ok := exec.(Quoter); ok {
		table, pk = q.QuoteIdent(table), q.QuoteIdent(pk)
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s = '%s' LIMIT 1",
		table, pk, strings.ReplaceAll(id, "'", "''"))
}

// Browser is implemented by executors that can page through the dataset.
type Browser interface {
	Columns(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Page(ctx context.Context, offset, limit int) ([]record.Row, error)
}
