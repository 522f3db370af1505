package writer

import (
	"context"
	"database/sql"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/db"
)

// Postgres writes updates with a single parameterized UPDATE.
type Postgres struct {
	pool       db.Pool
	table      string
	primaryKey string
}

// NewPostgres creates a Postgres writer.
func NewPostgres(pool db.Pool, table, primaryKey string) *Postgres {
	return &Postgres{pool: pool, table: table, primaryKey: primaryKey}
}

// UpdateRecord implements reconciler.RecordWriter.
func (w *Postgres) UpdateRecord(ctx context.Context, recordID string, payload map[string]any) error {
	if len(payload) == 0 {
		return nil
	}
	stmt, args, err := db.UpdateByKey(w.table, w.primaryKey, recordID, payload)
	if err != nil {
		return eris.Wrap(err, "writer: build update")
	}
	tag, err := w.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return eris.Wrapf(err, "writer: update %s", recordID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRecordNotFound, "writer: %s", recordID)
	}
	zap.L().Debug("writer: record updated",
		zap.String("record_id", recordID),
		zap.Int("columns", len(payload)),
	)
	return nil
}

// UpdateByKey numbers its placeholders in order, so they map onto "?".
var numberedParam = regexp.MustCompile(`\$\d+`)

// SQLite writes updates to a SQLite table.
type SQLite struct {
	db         *sql.DB
	table      string
	primaryKey string
}

// NewSQLite creates a SQLite writer.
func NewSQLite(conn *sql.DB, table, primaryKey string) *SQLite {
	return &SQLite{db: conn, table: table, primaryKey: primaryKey}
}

// UpdateRecord implements reconciler.RecordWriter.
func (w *SQLite) UpdateRecord(ctx context.Context, recordID string, payload map[string]any) error {
	if len(payload) == 0 {
		return nil
	}
	stmt, args, err := db.UpdateByKey(w.table, w.primaryKey, recordID, payload)
	if err != nil {
		return eris.Wrap(err, "writer: build update")
	}
	res, err := w.db.ExecContext(ctx, numberedParam.ReplaceAllString(stmt, "?"), args...)
	if err != nil {
		return eris.Wrapf(err, "writer: update %s", recordID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "writer: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRecordNotFound, "writer: %s", recordID)
	}
	return nil
}
