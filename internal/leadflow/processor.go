// Package leadflow runs the unit of work around the scoring engine: score a
// company, persist the score, and hand qualifying leads to the CRM queue.
package leadflow

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/queue"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/resilience"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/scorer"
)

// Store is the persistence the processor needs.
type Store interface {
	SaveScore(ctx context.Context, score model.LeadScore) error
	CompaniesToScore(ctx context.Context, olderThan time.Time, limit int) ([]model.CompanyWithContacts, error)
}

// Options configures a Processor.
type Options struct {
	// SyncThreshold is the minimum total score enqueued for CRM sync.
	SyncThreshold int
	// StaleAfter is how old a score may get before RunBatch rescores it.
	StaleAfter time.Duration
	Retry      resilience.RetryConfig
	Now        func() time.Time
}

// Processor scores, persists and routes leads.
type Processor struct {
	engine    *scorer.Engine
	store     Store
	queue     queue.Enqueuer
	threshold int
	stale     time.Duration
	retry     resilience.RetryConfig
	now       func() time.Time
}

// Outcome is the result of processing one company.
type Outcome struct {
	Result   scorer.Result   `json:"result"`
	Score    model.LeadScore `json:"score"`
	Enqueued bool            `json:"enqueued"`
}

// BatchSummary counts what a batch run did.
type BatchSummary struct {
	Selected  int `json:"selected"`
	Scored    int `json:"scored"`
	Persisted int `json:"persisted"`
	Enqueued  int `json:"enqueued"`
	Failed    int `json:"failed"`
}

// New creates a Processor. A nil enqueuer disables CRM routing.
func New(engine *scorer.Engine, st Store, q queue.Enqueuer, opts Options) *Processor {
	if opts.SyncThreshold <= 0 {
		opts.SyncThreshold = model.HighQualityThreshold
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = scorer.StaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Processor{
		engine:    engine,
		store:     st,
		queue:     q,
		threshold: opts.SyncThreshold,
		stale:     opts.StaleAfter,
		retry:     opts.Retry,
		now:       opts.Now,
	}
}

// Process scores one input and commits the result. A non-empty variant
// overrides hash assignment. Scoring errors are returned as is; persistence
// and enqueue are retried on transient failure.
func (p *Processor) Process(ctx context.Context, in scorer.Input, variant string) (*Outcome, error) {
	res, err := p.engine.ScoreOne(in, variant)
	if err != nil {
		return nil, err
	}
	return p.commit(ctx, res)
}

// commit persists res and enqueues CRM sync when it qualifies. The score ID
// is fixed before the first attempt so retries stay idempotent.
func (p *Processor) commit(ctx context.Context, res *scorer.Result) (*Outcome, error) {
	rec, err := res.Record(p.now())
	if err != nil {
		return nil, eris.Wrap(err, "leadflow: build score record")
	}
	qualifies := p.queue != nil && rec.TotalScore >= p.threshold

	cfg := p.retry
	cfg.OnRetry = resilience.RetryLogger("leadflow.commit",
		zap.String("company_id", rec.CompanyID),
		zap.String("lead_score_id", rec.ID))

	err = resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if err := p.store.SaveScore(ctx, rec); err != nil {
			return err
		}
		if !qualifies {
			return nil
		}
		return p.queue.EnqueueCRMSync(ctx, queue.CRMSyncPayload{
			CompanyID:   rec.CompanyID,
			LeadScoreID: rec.ID,
			TotalScore:  rec.TotalScore,
			Grade:       rec.Grade,
			Variant:     rec.Variant,
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "leadflow: commit score for %s", rec.CompanyID)
	}

	return &Outcome{Result: *res, Score: rec, Enqueued: qualifies}, nil
}

// RunBatch rescores up to limit companies that are due, with at most
// concurrency workers. Individual failures are logged and counted; only a
// failure to select companies is returned.
func (p *Processor) RunBatch(ctx context.Context, limit, concurrency int) (BatchSummary, error) {
	var summary BatchSummary
	log := zap.L().With(zap.String("operation", "leadflow.batch"))

	companies, err := p.store.CompaniesToScore(ctx, p.now().Add(-p.stale), limit)
	if err != nil {
		return summary, eris.Wrap(err, "leadflow: select companies")
	}
	summary.Selected = len(companies)
	if len(companies) == 0 {
		log.Info("leadflow: nothing to score")
		return summary, nil
	}

	inputs := make([]scorer.Input, len(companies))
	for i, c := range companies {
		inputs[i] = scorer.InputFromCompany(c.Company, c.Contacts)
	}
	results := p.engine.ScoreBatch(ctx, inputs, 0, concurrency)
	summary.Scored = len(results)

	if concurrency <= 0 {
		concurrency = 8
	}
	var persisted, enqueued, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range results {
		res := &results[i]
		g.Go(func() error {
			out, err := p.commit(gctx, res)
			if err != nil {
				failed.Add(1)
				log.Warn("leadflow: commit failed",
					zap.String("company_id", res.EntityID),
					zap.Error(err))
				return nil
			}
			persisted.Add(1)
			if out.Enqueued {
				enqueued.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Persisted = int(persisted.Load())
	summary.Enqueued = int(enqueued.Load())
	summary.Failed = summary.Selected - summary.Scored + int(failed.Load())

	log.Info("leadflow: batch complete",
		zap.Int("selected", summary.Selected),
		zap.Int("scored", summary.Scored),
		zap.Int("persisted", summary.Persisted),
		zap.Int("enqueued", summary.Enqueued),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
