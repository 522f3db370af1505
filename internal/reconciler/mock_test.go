package reconciler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) UpdateRecord(ctx context.Context, recordID string, payload map[string]any) error {
	args := m.Called(ctx, recordID, payload)
	return args.Error(0)
}

type mockEscalator struct {
	mock.Mock
}

func (m *mockEscalator) Escalate(ctx context.Context, ticketID string, e *model.Escalation) error {
	args := m.Called(ctx, ticketID, e)
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
