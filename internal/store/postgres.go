package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres opens a pool and returns a store that owns it.
func NewPostgres(ctx context.Context, dsn string, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, dsn, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open store")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool returns a store on an existing pool. Close is a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tickets (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	ticket_id  TEXT NOT NULL,
	record_id  TEXT NOT NULL,
	ticket     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS findings (
	id        BIGSERIAL PRIMARY KEY,
	ticket_id TEXT NOT NULL,
	topic     TEXT NOT NULL,
	query     TEXT NOT NULL,
	rank      INTEGER NOT NULL,
	result    JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_tickets_record_id ON tickets(record_id);
CREATE INDEX IF NOT EXISTS idx_findings_ticket_id ON findings(ticket_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateTicket(ctx context.Context, ticket model.Ticket) (*model.TicketRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	ticketJSON, err := json.Marshal(ticket)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal ticket")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tickets (id, ticket_id, record_id, ticket, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, ticket.ID, ticket.RecordID, ticketJSON, string(model.TicketQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert ticket")
	}

	return &model.TicketRun{
		ID:        id,
		Ticket:    ticket,
		Status:    model.TicketQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, runID string, status model.TicketStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tickets SET status = $1, error = NULLIF($2, ''), updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update ticket status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "ticket %s", runID)
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, runID string, result *model.TicketResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tickets SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.TicketComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "ticket %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, runID string) (*model.TicketRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, ticket, status, result, error, created_at, updated_at FROM tickets WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get ticket %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get ticket %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListTickets(ctx context.Context, filter TicketFilter) ([]model.TicketRun, error) {
	query := `SELECT id, ticket, status, result, error, created_at, updated_at FROM tickets WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.RecordID != "" {
		query += fmt.Sprintf(` AND record_id = $%d`, argIdx)
		args = append(args, filter.RecordID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tickets")
	}
	defer rows.Close()

	var runs []model.TicketRun
	for rows.Next() {
		r, err := scanPostgresTicket(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan ticket")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list tickets iterate")
}

var findingColumns = []string{"ticket_id", "topic", "query", "rank", "result"}

// SaveFindings bulk-loads findings with COPY.
func (s *PostgresStore) SaveFindings(ctx context.Context, findings []model.Finding) (int64, error) {
	rows := make([][]any, 0, len(findings))
	for _, f := range findings {
		resultJSON, err := json.Marshal(f.Result)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal finding")
		}
		rows = append(rows, []any{f.TicketID, f.Topic, f.Query, f.Rank, resultJSON})
	}
	n, err := db.CopyFrom(ctx, s.pool, "findings", findingColumns, rows)
	return n, eris.Wrap(err, "postgres: save findings")
}

func (s *PostgresStore) ListFindings(ctx context.Context, ticketID string) ([]model.Finding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ticket_id, topic, query, rank, result FROM findings WHERE ticket_id = $1 ORDER BY id`,
		ticketID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list findings")
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		var resultJSON []byte
		if err := rows.Scan(&f.TicketID, &f.Topic, &f.Query, &f.Rank, &resultJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan finding")
		}
		if err := json.Unmarshal(resultJSON, &f.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal finding")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list findings iterate")
}

func scanPostgresTicket(row pgx.Row) (*model.TicketRun, error) {
	var r model.TicketRun
	var ticketJSON []byte
	var resultJSON *[]byte
	var errMsg *string

	if err := row.Scan(&r.ID, &ticketJSON, &r.Status, &resultJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ticketJSON, &r.Ticket); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal ticket")
	}
	if resultJSON != nil {
		r.Result = &model.TicketResult{}
		if err := json.Unmarshal(*resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}
