package scorer

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StaleAfter is how old a prior score may get before the entity is due for
// rescoring.
const StaleAfter = 7 * 24 * time.Hour

const defaultBatchConcurrency = 8

// Candidate is an input together with the time it was last scored, if ever.
type Candidate struct {
	Input        Input
	LastScoredAt *time.Time
}

// IsStale reports whether the candidate has never been scored or its last
// score is older than maxAge relative to now.
func (c Candidate) IsStale(now time.Time, maxAge time.Duration) bool {
	return c.LastScoredAt == nil || c.LastScoredAt.Before(now.Add(-maxAge))
}

// SelectStale returns up to limit inputs whose candidates are stale, in
// their original order. A limit <= 0 means no limit.
func SelectStale(candidates []Candidate, now time.Time, maxAge time.Duration, limit int) []Input {
	var out []Input
	for _, c := range candidates {
		if limit > 0 && len(out) >= limit {
			break
		}
		if c.IsStale(now, maxAge) {
			out = append(out, c.Input)
		}
	}
	return out
}

type outcome struct {
	res *Result
	err error
}

// ScoreBatch scores up to limit inputs (all when limit <= 0) with at most
// concurrency goroutines. Items that fail are logged and omitted. Results
// keep input order.
func (e *Engine) ScoreBatch(ctx context.Context, inputs []Input, limit, concurrency int) []Result {
	if limit > 0 && len(inputs) > limit {
		inputs = inputs[:limit]
	}
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	log := zap.L().With(zap.Int("items", len(inputs)))

	outcomes := make([]outcome, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, in := range inputs {
		if gctx.Err() != nil {
			outcomes[i] = outcome{err: gctx.Err()}
			continue
		}
		g.Go(func() error {
			res, err := e.ScoreOne(in, "")
			outcomes[i] = outcome{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]Result, 0, len(inputs))
	failed := 0
	for i, o := range outcomes {
		if o.err != nil {
			failed++
			log.Warn("scorer: batch item failed",
				zap.Int("index", i),
				zap.String("entity_id", inputs[i].EntityID),
				zap.Error(o.err))
			continue
		}
		results = append(results, *o.res)
	}

	log.Info("scorer: batch complete",
		zap.Int("scored", len(results)),
		zap.Int("failed", failed))
	return results
}

// ScoreStale applies the staleness rule to candidates and scores the
// selected inputs.
func (e *Engine) ScoreStale(ctx context.Context, candidates []Candidate, limit, concurrency int) []Result {
	inputs := SelectStale(candidates, e.now(), StaleAfter, limit)
	return e.ScoreBatch(ctx, inputs, 0, concurrency)
}
