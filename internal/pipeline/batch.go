package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
)

// ProcessAll runs tickets one at a time in order. A cancelled context stops
// the batch and returns the results gathered so far.
func (p *Pipeline) ProcessAll(ctx context.Context, tickets []model.Ticket) []*model.TicketResult {
	results := make([]*model.TicketResult, 0, len(tickets))
	for i, t := range tickets {
		if err := ctx.Err(); err != nil {
			zap.L().Warn("pipeline: batch cancelled",
				zap.Int("processed", i),
				zap.Int("total", len(tickets)),
				zap.Error(err),
			)
			break
		}
		run, err := p.Run(ctx, t)
		if err != nil {
			zap.L().Error("pipeline: ticket run failed", zap.String("ticket_id", t.ID), zap.Error(err))
			results = append(results, p.Process(ctx, t))
			continue
		}
		results = append(results, run.Result)
	}
	return results
}
