// Package llm defines the completion client the enrichment agents talk to,
// with adapters for the Anthropic, OpenAI and Perplexity APIs.
package llm

import (
	"context"
	"strings"
)

// Message is a single conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	// Agent names the caller for cost attribution and logs.
	Agent     string
	System    string
	Messages  []Message
	MaxTokens int64
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response carries the text blocks of a completion. It implements
// payload.TextSource.
type Response struct {
	Model  string
	Blocks []string
	Usage  Usage
}

// TextBlocks returns the response's text blocks.
func (r *Response) TextBlocks() []string {
	if r == nil {
		return nil
	}
	return r.Blocks
}

// Client generates completions.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// User is shorthand for a single user message.
func User(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}

// Settings are per-agent defaults applied by WithSettings.
type Settings struct {
	TokenBudget int64
	SafetyNotes []string
}

type configured struct {
	inner    Client
	settings Settings
}

// WithSettings wraps c so that requests without a token limit use the
// configured budget and every system prompt carries the safety notes.
func WithSettings(c Client, s Settings) Client {
	if c == nil {
		return nil
	}
	if s.TokenBudget <= 0 && len(s.SafetyNotes) == 0 {
		return c
	}
	return &configured{inner: c, settings: s}
}

func (c *configured) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.settings.TokenBudget
	}
	if len(c.settings.SafetyNotes) > 0 {
		var b strings.Builder
		b.WriteString(req.System)
		if req.System != "" {
			b.WriteString("\n\n")
		}
		b.WriteString("Constraints:\n")
		for _, n := range c.settings.SafetyNotes {
			b.WriteString("- ")
			b.WriteString(n)
			b.WriteString("\n")
		}
		req.System = strings.TrimSpace(b.String())
	}
	return c.inner.Generate(ctx, req)
}
