package rowstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/record"
)

// Postgres executes statements against a pgx pool.
type Postgres struct {
	pool  db.Pool
	table string
}

// NewPostgres returns an executor over table.
func NewPostgres(pool db.Pool, table string) *Postgres {
	return &Postgres{pool: pool, table: table}
}

// QuoteIdent implements Quoter.
func (p *Postgres) QuoteIdent(name string) string {
	return db.TableIdent(name).Sanitize()
}

// Run implements Executor.
func (p *Postgres) Run(ctx context.Context, stmt string) ([]record.Row, error) {
	rows, err := p.pool.Query(ctx, stmt)
	if err != nil {
		return nil, eris.Wrap(err, "rowstore: postgres query")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, eris.Wrap(err, "rowstore: postgres collect rows")
	}
	result := make([]record.Row, len(out))
	for i, r := range out {
		result[i] = r
	}
	return result, nil
}

// Columns implements Browser.
func (p *Postgres) Columns(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", p.QuoteIdent(p.table)))
	if err != nil {
		return nil, eris.Wrap(err, "rowstore: postgres columns")
	}
	defer rows.Close()

	var cols []string
	for _, fd := range rows.FieldDescriptions() {
		cols = append(cols, fd.Name)
	}
	return cols, eris.Wrap(rows.Err(), "rowstore: postgres columns")
}

// Count implements Browser.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", p.QuoteIdent(p.table))).Scan(&n)
	return n, eris.Wrap(err, "rowstore: postgres count")
}

// Page implements Browser.
func (p *Postgres) Page(ctx context.Context, offset, limit int) ([]record.Row, error) {
	return p.Run(ctx, fmt.Sprintf("SELECT * FROM %s OFFSET %d LIMIT %d", p.QuoteIdent(p.table), max(offset, 0), max(limit, 1)))
}
