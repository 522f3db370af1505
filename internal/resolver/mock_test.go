package resolver

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/record"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Run(ctx context.Context, stmt string) ([]record.Row, error) {
	args := m.Called(ctx, stmt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]record.Row), args.Error(1)
}

type mockFlagger struct {
	mock.Mock
}

func (m *mockFlagger) FlagMissing(ctx context.Context, ticketID, question string, facts model.MissingFacts) error {
	args := m.Called(ctx, ticketID, question, facts)
	return args.Error(0)
}

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

func text(s string) *llm.Response {
	return &llm.Response{Blocks: []string{s}}
}

// agentIs matches requests from a named agent.
func agentIs(agent string) any {
	return mock.MatchedBy(func(req llm.Request) bool { return req.Agent == agent })
}

type recordedEvent struct {
	Ticket  string
	Event   string
	Payload map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Log(ticketID, event string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Ticket: ticketID, Event: event, Payload: payload})
	return nil
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Event
	}
	return out
}
