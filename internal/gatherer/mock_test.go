package gatherer

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
)

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SearchResult), args.Error(1)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) BulkAppend(ctx context.Context, ticketID string, findings []model.Finding) error {
	args := m.Called(ctx, ticketID, findings)
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

func hit(url, title string) model.SearchResult {
	return model.SearchResult{"url": url, "title": title, "snippet": title + " snippet"}
}

func queries(tasks []model.SearchTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Query
	}
	return out
}
