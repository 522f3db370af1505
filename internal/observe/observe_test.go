package observe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	events []string
}

func (r *recorder) Log(_ string, event string, _ map[string]any) error {
	r.events = append(r.events, event)
	return nil
}

func TestSafe_SwallowsErrorsAndPanics(t *testing.T) {
	t.Parallel()

	failing := NewSafe(Func(func(string, string, map[string]any) error {
		return errors.New("disk full")
	}))
	panicking := NewSafe(Func(func(string, string, map[string]any) error {
		panic("boom")
	}))

	assert.NotPanics(t, func() {
		failing.Emit("T1", "question_received", nil)
		panicking.Emit("T1", "question_received", nil)
	})
}

func TestSafe_NilIsNop(t *testing.T) {
	t.Parallel()

	var s *Safe
	assert.NotPanics(t, func() { s.Emit("T1", "x", nil) })
	assert.NotPanics(t, func() { NewSafe(nil).Emit("T1", "x", nil) })
}

func TestNewSafe_DoesNotDoubleWrap(t *testing.T) {
	t.Parallel()

	s := NewSafe(Nop{})
	assert.Same(t, s, NewSafe(s))
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	t.Parallel()

	first, last := &recorder{}, &recorder{}
	m := Multi{
		first,
		Func(func(string, string, map[string]any) error { panic("boom") }),
		nil,
		last,
	}

	assert.NoError(t, m.Log("T1", "sql_executed", map[string]any{"sql": "SELECT 1"}))
	assert.Equal(t, []string{"sql_executed"}, first.events)
	assert.Equal(t, []string{"sql_executed"}, last.events)
}

func TestZap_NeverFails(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Zap{}.Log("T1", "facts_extracted", map[string]any{"count": 2}))
}
