package rowstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // register the sqlite driver

	"github.com/sells-group/enrich-cli/internal/record"
)

// SQLite executes statements against a SQLite database file.
type SQLite struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens the dataset at path read-write.
func OpenSQLite(path, table string) (*SQLite, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "rowstore: open sqlite")
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "rowstore: sqlite pragma")
	}
	return &SQLite{db: conn, table: table}, nil
}

// NewSQLite wraps an open database.
func NewSQLite(conn *sql.DB, table string) *SQLite {
	return &SQLite{db: conn, table: table}
}

// DB exposes the handle so a record writer can share it.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// QuoteIdent implements Quoter.
func (s *SQLite) QuoteIdent(name string) string {
	return `"` + name + `"`
}

// Run implements Executor.
func (s *SQLite) Run(ctx context.Context, stmt string) ([]record.Row, error) {
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, eris.Wrap(err, "rowstore: sqlite query")
	}
	defer rows.Close() //nolint:errcheck
	return scanMaps(rows)
}

func scanMaps(rows *sql.Rows) ([]record.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "rowstore: sqlite columns")
	}

	var out []record.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "rowstore: sqlite scan")
		}
		row := make(record.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, eris.Wrap(rows.Err(), "rowstore: sqlite iterate")
}

// Columns implements Browser.
func (s *SQLite) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", s.QuoteIdent(s.table)))
	if err != nil {
		return nil, eris.Wrap(err, "rowstore: sqlite columns")
	}
	defer rows.Close() //nolint:errcheck
	cols, err := rows.Columns()
	return cols, eris.Wrap(err, "rowstore: sqlite columns")
}

// Count implements Browser.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.QuoteIdent(s.table))).Scan(&n)
	return n, eris.Wrap(err, "rowstore: sqlite count")
}

// Page implements Browser.
func (s *SQLite) Page(ctx context.Context, offset, limit int) ([]record.Row, error) {
	return s.Run(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", s.QuoteIdent(s.table), max(limit, 1), max(offset, 0)))
}
