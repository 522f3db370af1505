package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tickets (
	id         TEXT PRIMARY KEY,
	ticket_id  TEXT NOT NULL,
	record_id  TEXT NOT NULL,
	ticket     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS findings (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket_id TEXT NOT NULL,
	topic     TEXT NOT NULL,
	query     TEXT NOT NULL,
	rank      INTEGER NOT NULL,
	result    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_tickets_record_id ON tickets(record_id);
CREATE INDEX IF NOT EXISTS idx_findings_ticket_id ON findings(ticket_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTicket(ctx context.Context, ticket model.Ticket) (*model.TicketRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	ticketJSON, err := json.Marshal(ticket)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal ticket")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, ticket_id, record_id, ticket, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ticket.ID, ticket.RecordID, string(ticketJSON), string(model.TicketQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert ticket")
	}

	return &model.TicketRun{
		ID:        id,
		Ticket:    ticket,
		Status:    model.TicketQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, runID string, status model.TicketStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET status = ?, error = NULLIF(?, ''), updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update ticket status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) SaveResult(ctx context.Context, runID string, result *model.TicketResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.TicketComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save result %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetTicket(ctx context.Context, runID string) (*model.TicketRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ticket, status, result, error, created_at, updated_at FROM tickets WHERE id = ?`,
		runID,
	)
	return scanTicket(row)
}

func (s *SQLiteStore) ListTickets(ctx context.Context, filter TicketFilter) ([]model.TicketRun, error) {
	query := `SELECT id, ticket, status, result, error, created_at, updated_at FROM tickets WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.RecordID != "" {
		query += ` AND record_id = ?`
		args = append(args, filter.RecordID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tickets")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.TicketRun
	for rows.Next() {
		r, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list tickets iterate")
}

func (s *SQLiteStore) SaveFindings(ctx context.Context, findings []model.Finding) (int64, error) {
	if len(findings) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin findings")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO findings (ticket_id, topic, query, rank, result) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare findings")
	}
	defer stmt.Close() //nolint:errcheck

	for _, f := range findings {
		resultJSON, err := json.Marshal(f.Result)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal finding")
		}
		if _, err := stmt.ExecContext(ctx, f.TicketID, f.Topic, f.Query, f.Rank, string(resultJSON)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert finding for %s", f.TicketID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit findings")
	}
	return int64(len(findings)), nil
}

func (s *SQLiteStore) ListFindings(ctx context.Context, ticketID string) ([]model.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticket_id, topic, query, rank, result FROM findings WHERE ticket_id = ? ORDER BY id`,
		ticketID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list findings")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		var resultJSON string
		if err := rows.Scan(&f.TicketID, &f.Topic, &f.Query, &f.Rank, &resultJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan finding")
		}
		if err := json.Unmarshal([]byte(resultJSON), &f.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal finding")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list findings iterate")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "ticket %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*model.TicketRun, error) {
	var r model.TicketRun
	var ticketJSON string
	var resultJSON, errMsg sql.NullString

	err := row.Scan(&r.ID, &ticketJSON, &r.Status, &resultJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "sqlite: get ticket")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan ticket")
	}

	if err := json.Unmarshal([]byte(ticketJSON), &r.Ticket); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal ticket")
	}
	if resultJSON.Valid {
		r.Result = &model.TicketResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	r.Error = errMsg.String
	return &r, nil
}
