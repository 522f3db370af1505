//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrich-cli/internal/model"
)

func sampleRuns(now time.Time) []model.TicketRun {
	return []model.TicketRun{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Ticket:    model.Ticket{ID: "T-1", RecordID: "BRZ-1"},
			Status:    model.TicketComplete,
			Result:    &model.TicketResult{Status: model.StatusAnswered},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Second),
		},
		{
			ID:     "def12345-6789-0000-0000-000000000000",
			Ticket: model.Ticket{ID: "T-2", RecordID: "BRZ-2"},
			Status: model.TicketComplete,
			Result: &model.TicketResult{
				Status: model.StatusMissingValues,
				Update: &model.EnrichmentSummary{Status: model.SummaryUpdated, Escalated: &model.Escalation{}},
			},
			CreatedAt: now,
			UpdatedAt: now.Add(4 * time.Second),
		},
		{
			ID:        "ghi12345",
			Ticket:    model.Ticket{ID: "T-3", RecordID: "BRZ-3"},
			Status:    model.TicketFailed,
			Error:     "store unavailable",
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:        "jkl12345",
			Ticket:    model.Ticket{ID: "T-4"},
			Status:    model.TicketRunning,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func TestFormatTicketList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	var buf bytes.Buffer
	formatTicketList(&buf, sampleRuns(now))

	output := buf.String()
	for _, want := range []string{"ID", "TICKET", "RECORD", "ANSWER", "abc12345", "T-1", "BRZ-1", "answered", "missing_values", "failed", "2025-06-15 10:30", "2s"} {
		assert.Contains(t, output, want)
	}
	assert.NotContains(t, output, "abc12345-6789")
}

func TestComputeTicketStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	s := computeTicketStats(sampleRuns(now))

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Other)
	assert.Equal(t, 1, s.Answers[model.StatusAnswered])
	assert.Equal(t, 1, s.Answers[model.StatusMissingValues])
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 1, s.Escalated)
	assert.InDelta(t, 3.0, s.AvgDurSecs, 0.001)
}

func TestComputeTicketStats_Empty(t *testing.T) {
	s := computeTicketStats(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AvgDurSecs)
}

func TestFormatTicketStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	var buf bytes.Buffer
	formatTicketStats(&buf, computeTicketStats(sampleRuns(now)))

	output := buf.String()
	assert.Contains(t, output, "Total tickets:")
	assert.Contains(t, output, "answered:")
	assert.Contains(t, output, "Records updated:")
	assert.Contains(t, output, "Avg duration:")
	assert.Contains(t, output, "3.0s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
