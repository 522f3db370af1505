package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blocks []string

func (b blocks) TextBlocks() []string { return b }

func TestObjects_RecoversEmbeddedJSON(t *testing.T) {
	t.Parallel()

	text := `Sure! Here is the result: {"status": "answered", "facts": [{"concept": "city"}]} and that's all.`
	objs := Objects(text)
	require.Len(t, objs, 1)
	assert.Equal(t, "answered", objs[0]["status"])
}

func TestObjects_MultipleBlobsAndArrays(t *testing.T) {
	t.Parallel()

	text := `first {"a": 1} then [{"b": 2}, 3, {"c": 4}] and [not json] end {"d": true}`
	objs := Objects(text)
	require.Len(t, objs, 4)
	assert.Equal(t, json.Number("1"), objs[0]["a"])
	assert.Equal(t, json.Number("2"), objs[1]["b"])
	assert.Equal(t, json.Number("4"), objs[2]["c"])
	assert.Equal(t, true, objs[3]["d"])
}

func TestObjects_NeverFailsOnGarbage(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "no json here", "{{{{", "[1, 2", "} ] {", `{"unterminated": "`} {
		assert.Empty(t, Objects(text), text)
	}
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	in := "Here you go:\n```json\n{\"x\": 1}\n```\nThanks"
	out := StripFences(in)
	assert.NotContains(t, out, "```")
	assert.Contains(t, out, `{"x": 1}`)
}

func TestTexts_WalksNestedShapes(t *testing.T) {
	t.Parallel()

	resp := map[string]any{
		"output": []any{
			map[string]any{"content": []any{map[string]any{"text": "alpha"}}},
			map[string]any{"content": map[string]any{"text": "beta"}},
		},
		"output_text": "alpha",
		"choices": []any{
			map[string]any{"message": map[string]any{"content": "gamma"}},
		},
	}
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, Texts(resp))
}

func TestTexts_Deduplicates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"one", "two"}, Texts(blocks{"one", "two", "one", "  "}))
	assert.Empty(t, Texts(nil))
	assert.Empty(t, Texts(42))
}

func TestExtract_FencedBlock(t *testing.T) {
	t.Parallel()

	resp := blocks{"```json\n{\"status\": \"answered\"}\n```"}
	objs := Extract(resp)
	require.Len(t, objs, 1)
	assert.Equal(t, "answered", objs[0]["status"])
}

func TestFirst(t *testing.T) {
	t.Parallel()

	resp := blocks{`{"note": "x"} {"facts": []}`}
	obj, ok := First(resp, "facts")
	require.True(t, ok)
	assert.Contains(t, obj, "facts")

	_, ok = First(blocks{"plain text"})
	assert.False(t, ok)
}

func TestText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a\nb", Text(blocks{"a", "b"}))
}
