package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/model"
)

func TestApply_UpdatesKnownFields(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	esc := &mockEscalator{}
	w.On("UpdateRecord", mock.Anything, "row-1", map[string]any{"BUSINESS_NAME": "New Name"}).Return(nil).Once()

	r := New(w, esc, Config{AllowedColumns: []string{"BUSINESS_NAME"}})
	s := r.Apply(context.Background(), "T-1", "row-1", map[string]any{"business_name": "New Name"})

	assert.Equal(t, model.SummaryUpdated, s.Status)
	assert.Equal(t, []string{"BUSINESS_NAME"}, s.AppliedColumns)
	assert.Equal(t, map[string]any{"BUSINESS_NAME": "New Name"}, s.Payload)
	assert.Nil(t, s.Escalated)
	w.AssertExpectations(t)
	esc.AssertNotCalled(t, "Escalate", mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_EscalatesUnknownFields(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	esc := &mockEscalator{}
	esc.On("Escalate", mock.Anything, "T-2", mock.MatchedBy(func(e *model.Escalation) bool {
		return assert.ObjectsAreEqual(map[string]any{"NEW_METRIC": 42}, e.UnknownFields) && len(e.UnmatchedFacts) == 1
	})).Return(nil).Once()

	r := New(w, esc, Config{AllowedColumns: []string{"BUSINESS_NAME"}})
	s := r.Apply(context.Background(), "T-2", "row-1", map[string]any{"new_metric": 42})

	assert.Equal(t, model.SummarySkipped, s.Status)
	require.NotNil(t, s.Escalated)
	assert.Equal(t, "new_metric", s.Escalated.UnmatchedFacts[0].Concept)
	esc.AssertExpectations(t)
	w.AssertNotCalled(t, "UpdateRecord", mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_IgnoresEmptyValues(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	esc := &mockEscalator{}
	esc.On("Escalate", mock.Anything, "T-3", mock.MatchedBy(func(e *model.Escalation) bool {
		return len(e.EmptyFacts) == 1 && len(e.UnmatchedFacts) == 0
	})).Return(nil).Once()

	r := New(w, esc, Config{})
	s := r.Apply(context.Background(), "T-3", "row-1", map[string]any{"business_name": "   "})

	assert.Equal(t, model.SummarySkipped, s.Status)
	assert.Empty(t, s.AppliedColumns)
	esc.AssertExpectations(t)
	w.AssertNotCalled(t, "UpdateRecord", mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_ReasoningWithLLM(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	client := &mockLLM{}
	w.On("UpdateRecord", mock.Anything, "row-1", mock.Anything).Return(nil)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Agent == "reconciler.reasoning"
	})).Return(&llm.Response{Blocks: []string{"Applied BUSINESS_NAME; no issues detected."}}, nil).Once()

	r := New(w, &mockEscalator{}, Config{AllowedColumns: []string{"BUSINESS_NAME"}}, WithLLM(client))
	s := r.Apply(context.Background(), "T-llm", "row-1", map[string]any{"business_name": "New Name"})

	assert.Contains(t, s.Reasoning, "BUSINESS_NAME")
	client.AssertExpectations(t)
}

func TestApply_ReasoningFailureIsSilent(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	client := &mockLLM{}
	w.On("UpdateRecord", mock.Anything, "row-1", mock.Anything).Return(nil)
	client.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	r := New(w, &mockEscalator{}, Config{}, WithLLM(client))
	s := r.Apply(context.Background(), "T-4", "row-1", []model.Fact{{Concept: "phone", Value: "555"}})

	assert.Equal(t, model.SummaryUpdated, s.Status)
	assert.Empty(t, s.Reasoning)
}

func TestApply_FactsSingleUpdate(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	esc := &mockEscalator{}
	w.On("UpdateRecord", mock.Anything, "abc", map[string]any{
		"PHONE":         "+1 555 0100",
		"LOCATION_CITY": "Florence",
		"WEBSITE_URL":   "https://cafe.example",
	}).Return(nil).Once()
	esc.On("Escalate", mock.Anything, "T-C", mock.MatchedBy(func(e *model.Escalation) bool {
		return len(e.UnmatchedFacts) == 1 && e.UnmatchedFacts[0].Concept == "owner_name" &&
			len(e.EmptyFacts) == 1 && e.UnknownFields == nil
	})).Return(nil).Once()

	r := New(w, esc, Config{AllowedColumns: []string{"BRIZO_ID", "PHONE", "LOCATION_CITY", "WEBSITE_URL"}})
	s := r.Apply(context.Background(), "T-C", "abc", []model.Fact{
		{Concept: "phone_number", Value: " +1 555 0100 ", CandidateColumns: []string{"phone"}},
		{Concept: "city", Value: "Florence", CandidateColumns: []string{"location-city"}},
		{Concept: "website", Value: "https://cafe.example"},
		{Concept: "owner_name", Value: "Ada"},
		{Concept: "email", Value: nil},
	})

	assert.Equal(t, model.SummaryUpdated, s.Status)
	assert.Equal(t, []string{"PHONE", "LOCATION_CITY", "WEBSITE_URL"}, s.AppliedColumns)
	assert.Len(t, s.AppliedFacts, 3)
	w.AssertExpectations(t)
	esc.AssertExpectations(t)
}

func TestApply_WriterError(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	w.On("UpdateRecord", mock.Anything, "row-1", mock.Anything).Return(errors.New("locked"))

	r := New(w, nil, Config{})
	s := r.Apply(context.Background(), "T-5", "row-1", []model.Fact{{Concept: "phone", Value: "555"}})

	assert.Equal(t, model.SummarySkipped, s.Status)
	assert.Equal(t, "locked", s.Error)
	assert.Empty(t, s.AppliedColumns)
}

func TestApply_NilInput(t *testing.T) {
	t.Parallel()
	w := &mockWriter{}
	esc := &mockEscalator{}

	s := New(w, esc, Config{}).Apply(context.Background(), "T-6", "row-1", nil)

	assert.Equal(t, model.SummarySkipped, s.Status)
	assert.Nil(t, s.Escalated)
	w.AssertNotCalled(t, "UpdateRecord", mock.Anything, mock.Anything, mock.Anything)
}

func TestMatch(t *testing.T) {
	t.Parallel()
	allowed := New(nil, nil, Config{AllowedColumns: []string{"BUSINESS_NAME", "LOCATION_CITY", "LOCATION_STATE", "ANNUAL_REVENUE"}})
	open := New(nil, nil, Config{})

	tests := []struct {
		name string
		r    *Reconciler
		fact model.Fact
		want string
		ok   bool
	}{
		{"candidate exact", allowed, model.Fact{Concept: "x", CandidateColumns: []string{"business_name"}}, "BUSINESS_NAME", true},
		{"candidate alnum", allowed, model.Fact{Concept: "x", CandidateColumns: []string{"Location-City"}}, "LOCATION_CITY", true},
		{"concept", allowed, model.Fact{Concept: "annual_revenue"}, "ANNUAL_REVENUE", true},
		{"token subset", allowed, model.Fact{Concept: "revenue"}, "ANNUAL_REVENUE", true},
		{"ambiguous tokens", allowed, model.Fact{Concept: "location"}, "", false},
		{"no match", allowed, model.Fact{Concept: "owner"}, "", false},
		{"open hint", open, model.Fact{Concept: "owner", CandidateColumns: []string{" OwnerName "}}, "OwnerName", true},
		{"open concept", open, model.Fact{Concept: "owner_name"}, "OWNER_NAME", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tt.r.Match(tt.fact)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
