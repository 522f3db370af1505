package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/pkg/perplexity"
)

// Perplexity adapts the Perplexity chat API to Client. Its answers are
// grounded in live web results, which suits the scraper follow-up prompt.
type Perplexity struct {
	client perplexity.Client
	model  string
}

// NewPerplexity creates a Perplexity-backed completion client. An empty model
// uses the client's default.
func NewPerplexity(client perplexity.Client, model string) *Perplexity {
	return &Perplexity{client: client, model: model}
}

// Generate sends req as a chat completion.
func (p *Perplexity) Generate(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]perplexity.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, perplexity.Message{Role: m.Role, Content: m.Content})
	}
	cr := perplexity.ChatCompletionRequest{Model: p.model, Messages: msgs}
	if req.MaxTokens > 0 {
		n := int(req.MaxTokens)
		cr.MaxTokens = &n
	}

	resp, err := p.client.ChatCompletion(ctx, cr)
	if err != nil {
		return nil, eris.Wrap(err, "llm: perplexity generate")
	}
	out := &Response{
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			out.Blocks = append(out.Blocks, c.Message.Content)
		}
	}
	return out, nil
}
