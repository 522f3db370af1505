package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Answer(ctx context.Context, ticketID, question, recordID string) *model.Answer {
	args := m.Called(ctx, ticketID, question, recordID)
	return args.Get(0).(*model.Answer)
}

func (m *mockResolver) IncorporateFindings(ctx context.Context, ticketID, question, recordID string, findings []model.Finding, recordCtx map[string]any) (*model.Answer, bool) {
	args := m.Called(ctx, ticketID, question, recordID, findings, recordCtx)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*model.Answer), args.Bool(1)
}

type mockGatherer struct {
	mock.Mock
}

func (m *mockGatherer) Execute(ctx context.Context, ticketID, question string, missing model.MissingFacts) *model.SearchOutcome {
	args := m.Called(ctx, ticketID, question, missing)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*model.SearchOutcome)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Apply(ctx context.Context, ticketID, recordID string, input any) *model.EnrichmentSummary {
	args := m.Called(ctx, ticketID, recordID, input)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*model.EnrichmentSummary)
}

type mockProposer struct {
	mock.Mock
}

func (m *mockProposer) Propose(ctx context.Context, ticketID string, esc *model.Escalation) *model.SchemaProposal {
	args := m.Called(ctx, ticketID, esc)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*model.SchemaProposal)
}

type mockFlagger struct {
	mock.Mock
}

func (m *mockFlagger) FlagMissing(ctx context.Context, ticketID, question string, facts model.MissingFacts) error {
	args := m.Called(ctx, ticketID, question, facts)
	return args.Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateTicket(ctx context.Context, ticket model.Ticket) (*model.TicketRun, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TicketRun), args.Error(1)
}

func (m *mockStore) UpdateStatus(ctx context.Context, runID string, status model.TicketStatus, errMsg string) error {
	args := m.Called(ctx, runID, status, errMsg)
	return args.Error(0)
}

func (m *mockStore) SaveResult(ctx context.Context, runID string, result *model.TicketResult) error {
	args := m.Called(ctx, runID, result)
	return args.Error(0)
}

func (m *mockStore) GetTicket(ctx context.Context, runID string) (*model.TicketRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TicketRun), args.Error(1)
}

func (m *mockStore) ListTickets(ctx context.Context, filter store.TicketFilter) ([]model.TicketRun, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TicketRun), args.Error(1)
}

func (m *mockStore) SaveFindings(ctx context.Context, findings []model.Finding) (int64, error) {
	args := m.Called(ctx, findings)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ListFindings(ctx context.Context, ticketID string) ([]model.Finding, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Finding), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) Log(_ string, event string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type mocks struct {
	resolver   *mockResolver
	gatherer   *mockGatherer
	reconciler *mockReconciler
	proposer   *mockProposer
	flagger    *mockFlagger
}

func newMocks() *mocks {
	return &mocks{
		resolver:   &mockResolver{},
		gatherer:   &mockGatherer{},
		reconciler: &mockReconciler{},
		proposer:   &mockProposer{},
		flagger:    &mockFlagger{},
	}
}

func (m *mocks) deps() Deps {
	return Deps{
		Resolver:   m.resolver,
		Gatherer:   m.gatherer,
		Reconciler: m.reconciler,
		Proposer:   m.proposer,
		Flagger:    m.flagger,
	}
}

func (m *mocks) assertExpectations(t mock.TestingT) {
	m.resolver.AssertExpectations(t)
	m.gatherer.AssertExpectations(t)
	m.reconciler.AssertExpectations(t)
	m.proposer.AssertExpectations(t)
	m.flagger.AssertExpectations(t)
}
