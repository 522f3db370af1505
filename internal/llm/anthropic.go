package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

const defaultMaxTokens = 1024

// Anthropic adapts an anthropic.Client to Client.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic-backed completion client.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	return &Anthropic{client: client, model: model}
}

// Generate sends req as a single Messages API call.
func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	msgs := make([]anthropic.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, anthropic.Message{Role: m.Role, Content: m.Content})
	}
	mr := anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if req.System != "" {
		mr.System = anthropic.CachedSystem(req.System)
	}

	resp, err := a.client.CreateMessage(ctx, mr)
	if err != nil {
		return nil, eris.Wrap(err, "llm: anthropic generate")
	}
	resp.Usage.LogCost(a.model, req.Agent)

	return &Response{
		Model:  resp.Model,
		Blocks: resp.TextBlocks(),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
