package scorer

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Engine scores leads against one immutable Config. It keeps no state
// between calls and is safe for concurrent use.
type Engine struct {
	cfg        Config
	industries *IndustryTable
	sizes      *SizeTable
	contacts   ContactScorer
	quality    QualityScorer
	resolver   *Resolver
	now        func() time.Time
	hash       string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source used by the data-quality recency check.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine validates cfg and builds an engine around it. An invalid or
// empty config is a programming error and is reported immediately.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	sizes, err := NewSizeTable(cfg.Size)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		industries: NewIndustryTable(cfg.Industries, cfg.DefaultIndustry),
		sizes:      sizes,
		contacts:   NewContactScorer(cfg.Contacts),
		quality:    NewQualityScorer(cfg.DataQuality),
		resolver:   NewResolver(cfg.ABTest),
		now:        time.Now,
		hash:       ConfigHash(cfg),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's scoring configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Resolver returns the engine's variant resolver.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// AssignVariant returns the variant the active test assigns to entityID.
func (e *Engine) AssignVariant(entityID string) string {
	return e.resolver.Assign(entityID, e.cfg.ABTest.TestName)
}

// ScoreOne scores a single input. variantOverride, when non-empty, bypasses
// variant assignment and must name a configured variant.
func (e *Engine) ScoreOne(in Input, variantOverride string) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	variant := variantOverride
	if variant == "" {
		variant = e.AssignVariant(in.EntityID)
	}
	vc, ok := e.cfg.ABTest.Variants[variant]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownVariant, "variant %q", variant)
	}

	industry := e.industries.Lookup(in.NAICSCode)
	industryScore := industry.Score()

	employees := in.EmployeeCount
	if employees == 0 {
		employees = parseEmployeeRange(in.EmployeeRange)
	}
	sizeScore, bucket, optimal := e.sizes.Score(employees)

	contactScore, contactFactors := e.contacts.Score(in.Contacts)
	qualityScore, qualityFactors := e.quality.Score(in, e.now())

	components := ComponentScores{
		Industry:    industryScore,
		Size:        sizeScore,
		Contact:     contactScore,
		DataQuality: qualityScore,
	}
	w := vc.Weights
	weighted := components.Industry*w.Industry +
		components.Size*w.Size +
		components.Contact*w.Contact +
		components.DataQuality*w.DataQuality
	total := int(math.Floor(clamp(weighted, 0, 100)))

	desc := in.NAICSDescription
	if desc == "" {
		desc = industry.Description
	}
	factors := Factors{
		Industry: IndustryFactors{
			NAICSCode:   in.NAICSCode,
			MatchedCode: industry.MatchedCode,
			Description: desc,
			BaseScore:   industry.BaseScore,
			Weight:      industry.Weight,
			RiskLevel:   industry.RiskLevel,
			Score:       industryScore,
		},
		Size: SizeFactors{
			EmployeeCount:  employees,
			EmployeeRange:  in.EmployeeRange,
			RangeLabel:     bucket.Label,
			Category:       bucket.Category,
			BaseScore:      bucket.Score,
			Bonus:          bucket.Bonus,
			InOptimalRange: optimal,
			Score:          sizeScore,
		},
		Contacts:    contactFactors,
		DataQuality: qualityFactors,
	}

	res := &Result{
		EntityID:       in.EntityID,
		TotalScore:     total,
		Grade:          GradeFor(total),
		Components:     components,
		Factors:        factors,
		Reasons:        Reasons(factors),
		Recommendation: Recommendation(total, factors),
		Variant:        variant,
		ScoringVersion: vc.Version,
		ConfigHash:     e.hash,
	}

	zap.L().Debug("scorer: scored lead",
		zap.String("entity_id", in.EntityID),
		zap.String("variant", variant),
		zap.Int("total", total),
		zap.Float64("industry", industryScore),
		zap.Float64("size", sizeScore),
		zap.Float64("contact", contactScore),
		zap.Float64("data_quality", qualityScore),
	)
	return res, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
