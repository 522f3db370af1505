package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/record"
)

func sampleFindings() []model.Finding {
	return []model.Finding{
		{TicketID: "T", Topic: "general", Query: `"Cafe Example" phone`, Rank: 1, Result: model.SearchResult{
			"url": "https://cafe-example.com/contact", "title": "Contact", "snippet": "Call us at 555-0100",
		}},
	}
}

func TestIncorporateFindings_NoLLM(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}

	ans, ok := New(exec, nil, Config{}).IncorporateFindings(context.Background(), "T", "q", "abc", sampleFindings(), nil)
	assert.False(t, ok)
	assert.Nil(t, ans)
	exec.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestIncorporateFindings_UsesMemoizedRow(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}
	ai := &mockLLM{}
	row := record.Row{"BRIZO_ID": "abc", "BUSINESS_NAME": "Cafe Example", "PHONE": ""}
	exec.On("Run", mock.Anything, cafeQuery).Return([]record.Row{row}, nil).Once()
	ai.On("Generate", mock.Anything, agentIs("resolver.findings")).Return(text(`Here you go:
{"status": "answered",
 "facts": [{"concept": "phone", "value": "555-0100", "confidence": 0.8}],
 "sources": {"phone": ["https://cafe-example.com/contact"]},
 "notes": "From the contact page."}`), nil).Once()

	r := New(exec, nil, Config{}, WithLLM(ai))
	r.fetch(context.Background(), "T", "abc") //nolint:errcheck

	ans, ok := r.IncorporateFindings(context.Background(), "T", "What is the phone number?", "abc", sampleFindings(), nil)
	require.True(t, ok)
	assert.Equal(t, model.StatusAnswered, ans.Status)
	assert.Equal(t, model.OriginScraper, ans.AnswerOrigin)
	assert.Equal(t, map[string]any{"PHONE": "555-0100"}, ans.Answers)
	assert.Equal(t, map[string][]string{"phone": {"https://cafe-example.com/contact"}}, ans.Sources)
	assert.Equal(t, "From the contact page.", ans.Notes)
	assert.Equal(t, "Cafe Example", ans.Context["BUSINESS_NAME"])
	require.Len(t, ans.Facts, 1)
	assert.Equal(t, model.OriginScraper, ans.Facts[0].Origin)

	exec.AssertNumberOfCalls(t, "Run", 1)
	ai.AssertExpectations(t)
}

func TestIncorporateFindings_BlankOrDeclaredMissing(t *testing.T) {
	t.Parallel()
	for _, body := range []string{
		`{"status": "answered", "facts": [{"concept": "phone", "value": ""}]}`,
		`{"facts": [{"concept": "phone", "value": null}]}`,
		`{"status": "missing_values", "facts": [{"concept": "phone", "value": "555-0100"}]}`,
		`{"status": "record_not_found"}`,
	} {
		exec := &mockExecutor{}
		ai := &mockLLM{}
		exec.On("Run", mock.Anything, cafeQuery).Return([]record.Row{cafeRow()}, nil)
		ai.On("Generate", mock.Anything, agentIs("resolver.findings")).Return(text(body), nil)

		ans, ok := New(exec, nil, Config{}, WithLLM(ai)).
			IncorporateFindings(context.Background(), "T", "What is the phone number?", "abc", sampleFindings(), nil)
		assert.False(t, ok, body)
		assert.Nil(t, ans, body)
	}
}

func TestIncorporateFindings_RefetchesOtherRecord(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}
	ai := &mockLLM{}
	exec.On("Run", mock.Anything, "SELECT * FROM dataset WHERE BRIZO_ID = 'def' LIMIT 1").
		Return([]record.Row{{"BRIZO_ID": "def"}}, nil).Once()
	ai.On("Generate", mock.Anything, mock.Anything).Return(text(`{"facts": []}`), nil)

	ans, ok := New(exec, nil, Config{}, WithLLM(ai)).
		IncorporateFindings(context.Background(), "T", "q", "def", nil, map[string]any{"BUSINESS_NAME": "Deli"})
	assert.False(t, ok)
	assert.Nil(t, ans)
	exec.AssertExpectations(t)
}

func TestIncorporateFindings_LLMError(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}
	ai := &mockLLM{}
	exec.On("Run", mock.Anything, mock.Anything).Return([]record.Row{cafeRow()}, nil)
	ai.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))
	rec := &eventRecorder{}

	_, ok := New(exec, nil, Config{}, WithLLM(ai), WithObserver(rec)).
		IncorporateFindings(context.Background(), "T", "q", "abc", sampleFindings(), nil)
	assert.False(t, ok)
	assert.Contains(t, rec.names(), "scraper_findings_received")
	assert.Contains(t, rec.names(), "scraper_facts_resolved")
}

func TestIncorporateFindings_SharedSources(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}
	ai := &mockLLM{}
	exec.On("Run", mock.Anything, mock.Anything).Return([]record.Row{cafeRow()}, nil)
	ai.On("Generate", mock.Anything, mock.Anything).Return(text(
		`{"facts": [{"concept": "phone", "value": "555"}, {"concept": "email", "value": "a@b.c", "sources": ["https://x"]}], "sources": ["https://shared"]}`,
	), nil)

	ans, ok := New(exec, nil, Config{}, WithLLM(ai)).
		IncorporateFindings(context.Background(), "T", "q", "abc", sampleFindings(), nil)
	require.True(t, ok)
	assert.Equal(t, []string{"https://shared"}, ans.Sources["phone"])
	assert.Equal(t, []string{"https://x"}, ans.Sources["email"])
	assert.Equal(t, "EMAIL", answerKey(ans.Facts[1], record.NewColumnIndex(nil)))
}

func TestSerializeFindings(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 500)
	out := SerializeFindings([]model.Finding{
		{Topic: "general", Query: "q", Result: model.SearchResult{"link": "https://a.com", "name": "A", "text": long}},
	})

	assert.True(t, strings.HasPrefix(out, "- topic=general | query=q | url=https://a.com | title=A | snippet=xxx"))
	assert.LessOrEqual(t, len([]rune(strings.TrimPrefix(out, "- "))), maxEvidenceChars)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Equal(t, "(no evidence)", SerializeFindings(nil))
}
