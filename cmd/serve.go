package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/observe"
	"github.com/sells-group/enrich-cli/internal/proposer"
	"github.com/sells-group/enrich-cli/internal/record"
	"github.com/sells-group/enrich-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := newAPIServer(ctx, apiDeps{
			Runner:             env.Pipeline,
			Dataset:            env.Dataset,
			Store:              env.Store,
			Timeline:           env.Timeline,
			Migrations:         env.Migrations,
			ContextColumns:     nonEmptySlice(cfg.Dataset.ContextColumns),
			CandidateURLFields: cfg.Dataset.CandidateURLFields,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		api.Wait()
		return nil
	},
}

const (
	defaultRowLimit = 25
	maxRowLimit     = 100
)

// apiDeps are the collaborators behind the HTTP API.
type apiDeps struct {
	Runner             ticketRunner
	Dataset            *dataset
	Store              store.Store // may be nil
	Timeline           *observe.Timeline
	Migrations         proposer.MigrationWriter
	ContextColumns     []string
	CandidateURLFields []string
}

// apiServer serves dataset browsing, chat sessions and ticket results.
// Results are kept in memory for an hour; older runs are read back from the
// store when one is configured.
type apiServer struct {
	deps     apiDeps
	baseCtx  context.Context
	results  *cache.Cache
	sessions *cache.Cache

	mu sync.Mutex
	wg sync.WaitGroup
}

// chatState is one browser chat session bound to a record.
type chatState struct {
	ID       string
	RecordID string
	Counter  int
}

func newAPIServer(ctx context.Context, deps apiDeps) *apiServer {
	if deps.Timeline == nil {
		deps.Timeline = observe.NewTimeline(0, 0)
	}
	return &apiServer{
		deps:     deps,
		baseCtx:  ctx,
		results:  cache.New(time.Hour, 10*time.Minute),
		sessions: cache.New(12*time.Hour, time.Hour),
	}
}

// Wait blocks until background ticket processing finishes.
func (s *apiServer) Wait() { s.wg.Wait() }

// Router builds the chi router.
func (s *apiServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/dataset/columns", s.handleColumns)
		r.Get("/dataset/rows", s.handleRows)
		r.Post("/schema/apply", s.handleSchemaApply)
		r.Post("/session", s.handleStartSession)
		r.Get("/session/{sessionID}", s.handleGetSession)
		r.Post("/session/{sessionID}/ask", s.handleAsk)
		r.Post("/tickets", s.handleCreateTicket)
		r.Get("/tickets/{ticketID}", s.handleGetTicket)
		r.Get("/tickets/{ticketID}/events", s.handleTicketEvents)
	})
	return r
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := s.deps.Dataset.Columns(r.Context())
	if err != nil {
		zap.L().Error("serve: list columns", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list columns")
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"columns":     cols,
		"primary_key": s.deps.Dataset.PrimaryKey,
		"table_name":  s.deps.Dataset.Table,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *apiServer) handleRows(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultRowLimit)
	if err != nil || limit < 1 || limit > maxRowLimit {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxRowLimit))
		return
	}

	ctx := r.Context()
	cols, err := s.deps.Dataset.Columns(ctx)
	if err != nil {
		zap.L().Error("serve: list columns", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list columns")
		return
	}
	total, err := s.deps.Dataset.Count(ctx)
	if err != nil {
		zap.L().Error("serve: count rows", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to count rows")
		return
	}

	rows := []record.Row{}
	if offset < total {
		page, err := s.deps.Dataset.Page(ctx, offset, limit)
		if err != nil {
			zap.L().Error("serve: page rows", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to fetch rows")
			return
		}
		rows = append(rows, page...)
	}

	respond(w, http.StatusOK, map[string]any{
		"columns":     cols,
		"rows":        rows,
		"total":       total,
		"offset":      offset,
		"limit":       limit,
		"has_more":    offset+len(rows) < total,
		"primary_key": s.deps.Dataset.PrimaryKey,
		"table_name":  s.deps.Dataset.Table,
	})
}

type schemaApplyRequest struct {
	TicketID            string                 `json:"ticket_id"`
	TableName           string                 `json:"table_name"`
	MigrationName       string                 `json:"migration_name"`
	Columns             []model.ColumnProposal `json:"columns"`
	MigrationStatements []string               `json:"migration_statements"`
}

// handleSchemaApply persists reviewer-approved schema changes. Explicit
// statements win; otherwise one statement per named column is rendered.
func (s *apiServer) handleSchemaApply(w http.ResponseWriter, r *http.Request) {
	var req schemaApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.deps.Migrations == nil {
		respondError(w, http.StatusServiceUnavailable, "no migration writer configured")
		return
	}

	var statements []string
	for _, stmt := range req.MigrationStatements {
		if strings.TrimSpace(stmt) != "" {
			statements = append(statements, stmt)
		}
	}
	if len(statements) == 0 {
		table := req.TableName
		if table == "" {
			table = s.deps.Dataset.Table
		}
		if !proposer.ValidTable(table) {
			respondError(w, http.StatusBadRequest, "invalid table name")
			return
		}
		for _, c := range req.Columns {
			if proposer.NormalizeName(c.Name) == "" {
				continue
			}
			stmt := proposer.Statement(table, c)
			if !c.Nullable {
				stmt = strings.TrimSuffix(stmt, ";") + " NOT NULL;"
			}
			statements = append(statements, stmt)
		}
	}
	if len(statements) == 0 {
		respondError(w, http.StatusBadRequest, "No schema changes supplied")
		return
	}

	name := req.MigrationName
	if name == "" {
		name = "ticket_" + strings.ToLower(req.TicketID) + "_ui"
	}
	path, err := s.deps.Migrations.Write(r.Context(), name, statements)
	if err != nil {
		zap.L().Error("serve: write migration", zap.String("ticket_id", req.TicketID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to persist migration")
		return
	}

	zap.L().Info("schema migration applied",
		zap.String("ticket_id", req.TicketID),
		zap.String("path", path),
		zap.Int("statements", len(statements)),
	)
	respond(w, http.StatusOK, map[string]any{
		"status":             "applied",
		"migration_path":     path,
		"statements_written": len(statements),
	})
}

func (s *apiServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordID string `json:"record_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.RecordID) == "" {
		respondError(w, http.StatusBadRequest, "record_id is required")
		return
	}
	recordID := strings.TrimSpace(req.RecordID)

	row, ok := s.fetchRecord(w, r, recordID)
	if !ok {
		return
	}

	state := &chatState{RecordID: recordID}
	s.mu.Lock()
	for {
		state.ID = uuid.NewString()[:8]
		if _, taken := s.sessions.Get(state.ID); !taken {
			break
		}
	}
	s.sessions.SetDefault(state.ID, state)
	s.mu.Unlock()

	zap.L().Info("session created", zap.String("session_id", state.ID), zap.String("record_id", recordID))
	respond(w, http.StatusOK, s.sessionBody(state, row))
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(chi.URLParam(r, "sessionID"))
	if !ok {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	row, ok := s.fetchRecord(w, r, state.RecordID)
	if !ok {
		return
	}
	respond(w, http.StatusOK, s.sessionBody(state, row))
}

func (s *apiServer) fetchRecord(w http.ResponseWriter, r *http.Request, recordID string) (record.Row, bool) {
	row, err := s.deps.Dataset.Record(r.Context(), recordID)
	if err != nil {
		zap.L().Error("serve: fetch record", zap.String("record_id", recordID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to fetch record")
		return nil, false
	}
	if row == nil {
		respondError(w, http.StatusNotFound, "Record not found")
		return nil, false
	}
	return row, true
}

func (s *apiServer) sessionBody(state *chatState, row record.Row) map[string]any {
	return map[string]any{
		"session_id":         state.ID,
		"record_id":          state.RecordID,
		"table_name":         s.deps.Dataset.Table,
		"primary_key_column": s.deps.Dataset.PrimaryKey,
		"record":             row,
		"record_context":     record.BuildContext(row, s.deps.ContextColumns),
		"candidate_urls":     record.CandidateURLs(row, s.deps.CandidateURLFields),
	}
}

func (s *apiServer) session(id string) (*chatState, bool) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*chatState), true
}

// reserveTicket returns the session's next ticket id.
func (s *apiServer) reserveTicket(state *chatState) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.Counter++
	return fmt.Sprintf("%s-Q%03d", state.ID, state.Counter)
}

func (s *apiServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(chi.URLParam(r, "sessionID"))
	if !ok {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	t := model.Ticket{
		ID:       s.reserveTicket(state),
		Question: strings.TrimSpace(req.Question),
		RecordID: state.RecordID,
	}
	zap.L().Info("dispatching ticket",
		zap.String("session_id", state.ID),
		zap.String("ticket_id", t.ID),
		zap.String("record_id", t.RecordID),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.process(s.baseCtx, t); err != nil {
			zap.L().Error("serve: background ticket failed", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}()

	respond(w, http.StatusAccepted, map[string]string{
		"session_id": state.ID,
		"ticket_id":  t.ID,
		"record_id":  t.RecordID,
	})
}

func (s *apiServer) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var t model.Ticket
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t.Question = strings.TrimSpace(t.Question)
	t.RecordID = strings.TrimSpace(t.RecordID)
	if t.Question == "" || t.RecordID == "" {
		respondError(w, http.StatusBadRequest, "question and record_id are required")
		return
	}
	if t.ID == "" {
		t.ID = "API-" + strings.ToUpper(uuid.NewString()[:8])
	}

	run, err := s.process(r.Context(), t)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ticket processing failed")
		return
	}
	respond(w, http.StatusOK, s.ticketBody(t.ID, run))
}

func (s *apiServer) process(ctx context.Context, t model.Ticket) (*model.TicketRun, error) {
	run, err := s.deps.Runner.Run(ctx, t)
	if err != nil {
		return nil, err
	}
	s.results.SetDefault(t.ID, run)
	return run, nil
}

// lookup finds a finished run by ticket id in memory, or by run id in the
// store.
func (s *apiServer) lookup(ctx context.Context, id string) (*model.TicketRun, bool) {
	if v, ok := s.results.Get(id); ok {
		return v.(*model.TicketRun), true
	}
	if s.deps.Store == nil {
		return nil, false
	}
	run, err := s.deps.Store.GetTicket(ctx, id)
	if err != nil || run.Result == nil {
		return nil, false
	}
	return run, true
}

func (s *apiServer) ticketBody(ticketID string, run *model.TicketRun) map[string]any {
	return map[string]any{
		"ticket_id": ticketID,
		"run_id":    run.ID,
		"status":    run.Status,
		"result":    run.Result,
		"timeline":  s.deps.Timeline.Events(ticketID),
	}
}

func (s *apiServer) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticketID")
	run, ok := s.lookup(r.Context(), id)
	if !ok {
		respondError(w, http.StatusNotFound, "Result not ready")
		return
	}
	ticketID := id
	if run.Ticket.ID != "" {
		ticketID = run.Ticket.ID
	}
	respond(w, http.StatusOK, s.ticketBody(ticketID, run))
}

// eventPollInterval is how often the event stream checks for new entries.
var eventPollInterval = 200 * time.Millisecond

// handleTicketEvents streams the ticket's timeline as server-sent events
// and ends with a result event once the run is finished.
func (s *apiServer) handleTicketEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	id := chi.URLParam(r, "ticketID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()

	sent := 0
	for {
		events := s.deps.Timeline.Events(id)
		for _, e := range events[min(sent, len(events)):] {
			writeSSE(w, e.Event, e)
		}
		sent = max(sent, len(events))

		if v, done := s.results.Get(id); done {
			writeSSE(w, "result", v.(*model.TicketRun).Result)
			flusher.Flush()
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
