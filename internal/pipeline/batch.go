package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/acquire-pipeline/internal/model"
)

// BatchSummary aggregates the outcomes of one batch evaluation.
type BatchSummary struct {
	Total     int                       `json:"total"`
	Succeeded int                       `json:"succeeded"`
	Failed    int                       `json:"failed"`
	Deduped   int                       `json:"deduped"`
	Eligible  int                       `json:"eligible"`
	Results   []*model.EvaluationResult `json:"results"`
}

// RunBatch evaluates listings concurrently, bounded by the configured
// listing limit. One listing failing never stops the rest; failures are
// counted on the summary and carried in each result's error field.
func (p *Pipeline) RunBatch(ctx context.Context, listings []model.RawListing) (*BatchSummary, error) {
	summary := &BatchSummary{
		Total:   len(listings),
		Results: make([]*model.EvaluationResult, len(listings)),
	}
	if len(listings) == 0 {
		return summary, nil
	}

	limit := p.cfg.Batch.MaxConcurrentListings
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range listings {
		g.Go(func() error {
			result, err := p.Run(gctx, listings[i])
			summary.Results[i] = result
			if err != nil {
				zap.L().Error("pipeline: batch listing failed",
					zap.String("business_id", listings[i].BusinessID()),
					zap.Error(err),
				)
			}
			return nil // one listing failing never aborts the batch
		})
	}
	_ = g.Wait()

	for _, result := range summary.Results {
		if result == nil {
			continue
		}
		if result.Error != "" {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		if result.Deduped {
			summary.Deduped++
		}
		if result.Eligible {
			summary.Eligible++
		}
	}

	zap.L().Info("pipeline: batch complete",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("deduped", summary.Deduped),
		zap.Int("eligible", summary.Eligible),
	)
	return summary, nil
}
