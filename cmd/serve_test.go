//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/migration"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/observe"
	"github.com/sells-group/enrich-cli/internal/store"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, t model.Ticket) (*model.TicketRun, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TicketRun), args.Error(1)
}

func answeredRun(t model.Ticket) *model.TicketRun {
	return &model.TicketRun{
		ID:     "run-" + t.ID,
		Ticket: t,
		Status: model.TicketComplete,
		Result: &model.TicketResult{
			TicketID: t.ID,
			Question: t.Question,
			RecordID: t.RecordID,
			Status:   model.StatusAnswered,
			Answers:  map[string]any{"business_name": "Cafe Example"},
		},
	}
}

type testAPI struct {
	api        *apiServer
	handler    http.Handler
	runner     *mockRunner
	timeline   *observe.Timeline
	migrations string
}

func newTestAPI(t *testing.T, st store.Store) *testAPI {
	t.Helper()
	dir := useTestConfig(t)
	ds, err := openDataset(context.Background())
	require.NoError(t, err)

	runner := &mockRunner{}
	timeline := observe.NewTimeline(time.Minute, 50)
	migrations := filepath.Join(dir, "migrations")
	api := newAPIServer(context.Background(), apiDeps{
		Runner:     runner,
		Dataset:    ds,
		Store:      st,
		Timeline:   timeline,
		Migrations: migration.NewFile(migrations),
	})
	return &testAPI{api: api, handler: api.Router(), runner: runner, timeline: timeline, migrations: migrations}
}

func (ta *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestAPI_Health(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := ta.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decode(t, rr)["status"])
}

func TestAPI_CORSPreflight(t *testing.T) {
	ta := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/tickets", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPI_DatasetColumns(t *testing.T) {
	ta := newTestAPI(t, nil)

	body := decode(t, ta.do(t, http.MethodGet, "/api/dataset/columns", nil))

	assert.Equal(t, []any{"BRIZO_ID", "BUSINESS_NAME", "WEBSITE", "LOCATION_CITY"}, body["columns"])
	assert.Equal(t, "BRIZO_ID", body["primary_key"])
	assert.Equal(t, "dataset", body["table_name"])
}

func TestAPI_DatasetRows(t *testing.T) {
	ta := newTestAPI(t, nil)

	tests := []struct {
		name     string
		query    string
		code     int
		rows     int
		hasMore  bool
		errorMsg string
	}{
		{name: "defaults", query: "", code: http.StatusOK, rows: 2},
		{name: "first page", query: "?offset=0&limit=1", code: http.StatusOK, rows: 1, hasMore: true},
		{name: "second page", query: "?offset=1&limit=1", code: http.StatusOK, rows: 1},
		{name: "past end", query: "?offset=5", code: http.StatusOK, rows: 0},
		{name: "negative offset", query: "?offset=-1", code: http.StatusBadRequest, errorMsg: "offset"},
		{name: "zero limit", query: "?limit=0", code: http.StatusBadRequest, errorMsg: "limit"},
		{name: "limit too large", query: "?limit=101", code: http.StatusBadRequest, errorMsg: "limit"},
		{name: "not a number", query: "?limit=ten", code: http.StatusBadRequest, errorMsg: "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ta.do(t, http.MethodGet, "/api/dataset/rows"+tt.query, nil)
			require.Equal(t, tt.code, rr.Code)

			body := decode(t, rr)
			if tt.errorMsg != "" {
				assert.Contains(t, body["error"], tt.errorMsg)
				return
			}
			assert.Len(t, body["rows"], tt.rows)
			assert.Equal(t, float64(2), body["total"])
			assert.Equal(t, tt.hasMore, body["has_more"])
		})
	}
}

func TestAPI_Session(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := ta.do(t, http.MethodPost, "/api/session", map[string]string{"record_id": "abc"})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	sessionID, _ := body["session_id"].(string)
	require.Len(t, sessionID, 8)
	assert.Equal(t, "abc", body["record_id"])
	assert.Equal(t, []any{"https://cafe.example"}, body["candidate_urls"])
	assert.Equal(t, "Cafe Example", body["record"].(map[string]any)["BUSINESS_NAME"])

	rr = ta.do(t, http.MethodGet, "/api/session/"+sessionID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, sessionID, decode(t, rr)["session_id"])

	rr = ta.do(t, http.MethodGet, "/api/session/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_SessionErrors(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := ta.do(t, http.MethodPost, "/api/session", map[string]string{"record_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Record not found", decode(t, rr)["error"])

	rr = ta.do(t, http.MethodPost, "/api/session", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_AskProcessesInBackground(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := ta.do(t, http.MethodPost, "/api/session", map[string]string{"record_id": "abc"})
	sessionID := decode(t, rr)["session_id"].(string)
	wantTicket := sessionID + "-Q001"

	ta.runner.On("Run", mock.Anything, mock.MatchedBy(func(tk model.Ticket) bool {
		return tk.ID == wantTicket && tk.RecordID == "abc" && tk.Question == "What is the business name?"
	})).Return(answeredRun(model.Ticket{ID: wantTicket, RecordID: "abc"}), nil).Once()

	rr = ta.do(t, http.MethodPost, "/api/session/"+sessionID+"/ask", map[string]string{"question": " What is the business name? "})
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, wantTicket, decode(t, rr)["ticket_id"])

	ta.api.Wait()
	rr = ta.do(t, http.MethodGet, "/api/tickets/"+wantTicket, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, wantTicket, body["ticket_id"])
	assert.Equal(t, "answered", body["result"].(map[string]any)["status"])
	ta.runner.AssertExpectations(t)

	rr = ta.do(t, http.MethodPost, "/api/session/nope/ask", map[string]string{"question": "q"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = ta.do(t, http.MethodPost, "/api/session/"+sessionID+"/ask", map[string]string{"question": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_CreateTicket(t *testing.T) {
	ta := newTestAPI(t, nil)

	ta.runner.On("Run", mock.Anything, mock.MatchedBy(func(tk model.Ticket) bool {
		return tk.ID == "T-1" && tk.Fields["LOCATION_CITY"] == "Siena"
	})).Return(answeredRun(model.Ticket{ID: "T-1", RecordID: "abc"}), nil).Once()
	ta.runner.On("Run", mock.Anything, mock.MatchedBy(func(tk model.Ticket) bool {
		return tk.ID == "T-ERR"
	})).Return(nil, errors.New("boom")).Once()

	rr := ta.do(t, http.MethodPost, "/api/tickets", map[string]any{
		"ticket_id":       "T-1",
		"question":        "What is the business name?",
		"record_id":       "abc",
		"enriched_fields": map[string]any{"LOCATION_CITY": "Siena"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "T-1", body["ticket_id"])
	assert.Equal(t, "run-T-1", body["run_id"])

	rr = ta.do(t, http.MethodPost, "/api/tickets", map[string]any{"ticket_id": "T-ERR", "question": "q", "record_id": "abc"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = ta.do(t, http.MethodPost, "/api/tickets", map[string]any{"question": "q"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	ta.runner.AssertExpectations(t)
}

func TestAPI_CreateTicketGeneratesID(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.runner.On("Run", mock.Anything, mock.MatchedBy(func(tk model.Ticket) bool {
		return strings.HasPrefix(tk.ID, "API-")
	})).Return(answeredRun(model.Ticket{ID: "API-X"}), nil).Once()

	rr := ta.do(t, http.MethodPost, "/api/tickets", map[string]any{"question": "q", "record_id": "abc"})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(decode(t, rr)["ticket_id"].(string), "API-"))
}

func TestAPI_GetTicketNotReady(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := ta.do(t, http.MethodGet, "/api/tickets/T-unknown", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Result not ready", decode(t, rr)["error"])
}

func TestAPI_GetTicketFromStore(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "tickets.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	ticket := model.Ticket{ID: "T-OLD", Question: "q", RecordID: "abc"}
	run, err := st.CreateTicket(context.Background(), ticket)
	require.NoError(t, err)
	require.NoError(t, st.SaveResult(context.Background(), run.ID, answeredRun(ticket).Result))

	ta := newTestAPI(t, st)
	rr := ta.do(t, http.MethodGet, "/api/tickets/"+run.ID, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "T-OLD", body["ticket_id"])
	assert.Equal(t, run.ID, body["run_id"])
}

func TestAPI_TicketEventsStream(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.runner.On("Run", mock.Anything, mock.Anything).Return(answeredRun(model.Ticket{ID: "T-EV"}), nil).Once()

	require.NoError(t, ta.timeline.Log("T-EV", "ticket_received", map[string]any{"record_id": "abc"}))
	require.NoError(t, ta.timeline.Log("T-EV", "ticket_completed", nil))
	rr := ta.do(t, http.MethodPost, "/api/tickets", map[string]any{"ticket_id": "T-EV", "question": "q", "record_id": "abc"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ta.do(t, http.MethodGet, "/api/tickets/T-EV/events", nil)

	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	out := rr.Body.String()
	assert.Contains(t, out, "event: ticket_received\n")
	assert.Contains(t, out, "event: ticket_completed\n")
	assert.Contains(t, out, "event: result\n")
	assert.Less(t, strings.Index(out, "ticket_received"), strings.Index(out, "event: result"))
}

func TestAPI_TicketEventsStopsOnDisconnect(t *testing.T) {
	ta := newTestAPI(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/tickets/T-PENDING/events", nil).WithContext(ctx)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		ta.handler.ServeHTTP(rr, req)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not stop after the client went away")
	}
}

func TestAPI_SchemaApply(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := ta.do(t, http.MethodPost, "/api/schema/apply", map[string]any{
		"ticket_id": "T-9",
		"columns": []map[string]any{
			{"name": "NEW_METRIC", "data_type": "NUMERIC", "nullable": true},
			{"name": "OWNER", "nullable": false},
			{"name": ""},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "applied", body["status"])
	assert.Equal(t, float64(2), body["statements_written"])

	path := body["migration_path"].(string)
	assert.Contains(t, path, "ticket_t-9_ui")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ALTER TABLE dataset ADD COLUMN IF NOT EXISTS "NEW_METRIC" NUMERIC;`)
	assert.Contains(t, string(data), `ALTER TABLE dataset ADD COLUMN IF NOT EXISTS "OWNER" TEXT NOT NULL;`)
}

func TestAPI_SchemaApplyRejectsEmpty(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := ta.do(t, http.MethodPost, "/api/schema/apply", map[string]any{"ticket_id": "T-9", "migration_statements": []string{" "}})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "No schema changes supplied", decode(t, rr)["error"])
}

func TestAPI_SchemaApplySanitizesColumns(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := ta.do(t, http.MethodPost, "/api/schema/apply", map[string]any{
		"ticket_id": "T-10",
		"columns": []map[string]any{
			{"name": `seats" INTEGER; DROP TABLE dataset; --`, "data_type": "INTEGER; DELETE FROM dataset", "nullable": true},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	data, err := os.ReadFile(decode(t, rr)["migration_path"].(string))
	require.NoError(t, err)
	assert.Contains(t, string(data), `ALTER TABLE dataset ADD COLUMN IF NOT EXISTS "SEATS_INTEGER_DROP_TABLE_DATASET" TEXT;`)
	assert.NotContains(t, string(data), "DELETE")
}

func TestAPI_SchemaApplyRejectsBadTable(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := ta.do(t, http.MethodPost, "/api/schema/apply", map[string]any{
		"ticket_id":  "T-11",
		"table_name": "dataset; DROP TABLE dataset",
		"columns":    []map[string]any{{"name": "SEATS"}},
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid table name", decode(t, rr)["error"])
}
