// Package payload recovers JSON objects from free-form model output.
//
// Completion responses arrive in many shapes: content block lists, nested
// message objects, aggregate text fields, and text that mixes prose, fenced
// blocks and several JSON documents. Nothing in this package returns an
// error; when no JSON can be recovered the result is simply empty.
package payload

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// TextSource is implemented by responses that already know their text
// blocks. It short-circuits the reflective walk in Texts.
type TextSource interface {
	TextBlocks() []string
}

// textKeys are the map keys that may hold text or nested text-bearing values.
var textKeys = []string{"output_text", "text", "content", "message", "choices", "output", "delta", "value"}

const maxDepth = 8

// Texts collects every distinct text block reachable from resp, in
// discovery order.
func Texts(resp any) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if strings.TrimSpace(s) == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	collect(resp, add, 0)
	return out
}

func collect(v any, add func(string), depth int) {
	if v == nil || depth > maxDepth {
		return
	}
	switch t := v.(type) {
	case TextSource:
		for _, s := range t.TextBlocks() {
			add(s)
		}
	case string:
		add(t)
	case []byte:
		add(string(t))
	case []string:
		for _, s := range t {
			add(s)
		}
	case []any:
		for _, item := range t {
			collect(item, add, depth+1)
		}
	case []map[string]any:
		for _, item := range t {
			collect(item, add, depth+1)
		}
	case map[string]any:
		for _, k := range textKeys {
			if inner, ok := t[k]; ok {
				collect(inner, add, depth+1)
			}
		}
	}
}

var fenceRe = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z0-9_-]*[ \t]*$")

// StripFences removes Markdown code fence lines, keeping their contents.
func StripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	s = fenceRe.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "```", "")
}

// Objects scans text left to right and decodes every JSON value starting at
// a '{' or '['. Objects are kept, arrays contribute their object elements,
// and scanning resumes after the decoded value or one byte past a failed
// start. Numbers decode as json.Number so integers stay distinguishable.
func Objects(text string) []map[string]any {
	var out []map[string]any
	data := []byte(text)
	for i := 0; i < len(data); {
		c := data[i]
		if c != '{' && c != '[' {
			i++
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(data[i:]))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			i++
			continue
		}
		consumed := int(dec.InputOffset())
		if consumed <= 0 {
			i++
			continue
		}
		out = append(out, flatten(v)...)
		i += consumed
	}
	return out
}

func flatten(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// Extract returns every JSON object recoverable from resp.
func Extract(resp any) []map[string]any {
	var out []map[string]any
	for _, text := range Texts(resp) {
		out = append(out, Objects(StripFences(text))...)
	}
	return out
}

// First returns the first recovered object containing any of keys, or the
// first object at all when keys is empty.
func First(resp any, keys ...string) (map[string]any, bool) {
	for _, obj := range Extract(resp) {
		if len(keys) == 0 {
			return obj, true
		}
		for _, k := range keys {
			if _, ok := obj[k]; ok {
				return obj, true
			}
		}
	}
	return nil, false
}

// Text joins the distinct text blocks of resp.
func Text(resp any) string {
	return strings.TrimSpace(strings.Join(Texts(resp), "\n"))
}
