// Package store persists ticket runs and their search evidence.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// ErrNotFound is returned when a ticket run does not exist.
var ErrNotFound = eris.New("store: not found")

// TicketFilter specifies criteria for listing ticket runs.
type TicketFilter struct {
	Status   model.TicketStatus `json:"status,omitempty"`
	RecordID string             `json:"record_id,omitempty"`
	Limit    int                `json:"limit,omitempty"`
	Offset   int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for ticket runs.
type Store interface {
	CreateTicket(ctx context.Context, ticket model.Ticket) (*model.TicketRun, error)
	UpdateStatus(ctx context.Context, runID string, status model.TicketStatus, errMsg string) error
	SaveResult(ctx context.Context, runID string, result *model.TicketResult) error
	GetTicket(ctx context.Context, runID string) (*model.TicketRun, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]model.TicketRun, error)

	SaveFindings(ctx context.Context, findings []model.Finding) (int64, error)
	ListFindings(ctx context.Context, ticketID string) ([]model.Finding, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Evidence adapts a Store to the gatherer's evidence sink.
type Evidence struct {
	Store Store
}

// BulkAppend stores findings for a ticket.
func (e Evidence) BulkAppend(ctx context.Context, ticketID string, findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	for i := range findings {
		if findings[i].TicketID == "" {
			findings[i].TicketID = ticketID
		}
	}
	_, err := e.Store.SaveFindings(ctx, findings)
	return err
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
