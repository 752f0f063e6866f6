package experiment

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/scorer"
)

// Lift below this magnitude, in percent, is considered practically small.
const smallLiftPercent = 5.0

// Options controls an analysis run.
type Options struct {
	TestName        string
	Window          Window
	ConfidenceLevel float64
	// Control defaults to scorer.ControlVariant.
	Control string
	// Strategy defaults to ThresholdTest.
	Strategy Significance
}

// Comparison is the outcome of one challenger against the control.
type Comparison struct {
	Control        string   `json:"control" yaml:"control"`
	Challenger     string   `json:"challenger" yaml:"challenger"`
	ControlRate    float64  `json:"control_rate" yaml:"control_rate"`
	ChallengerRate float64  `json:"challenger_rate" yaml:"challenger_rate"`
	Sufficient     bool     `json:"sufficient_data" yaml:"sufficient_data"`
	Significant    bool     `json:"is_significant" yaml:"is_significant"`
	PValue         *float64 `json:"p_value" yaml:"p_value"`
	Lift           *float64 `json:"lift_percentage" yaml:"lift_percentage"`
	Winner         string   `json:"winning_variant,omitempty" yaml:"winning_variant,omitempty"`
	Recommendation string   `json:"recommendation" yaml:"recommendation"`
}

// Report is the full analysis of one test. The headline fields repeat the
// first comparison.
type Report struct {
	TestName        string         `json:"test_name" yaml:"test_name"`
	Window          Window         `json:"window" yaml:"window"`
	ConfidenceLevel float64        `json:"confidence_level" yaml:"confidence_level"`
	Strategy        string         `json:"strategy" yaml:"strategy"`
	Control         string         `json:"control" yaml:"control"`
	Variants        []VariantStats `json:"variant_stats" yaml:"variant_stats"`
	Comparisons     []Comparison   `json:"comparisons" yaml:"comparisons"`
	Significant     bool           `json:"is_significant" yaml:"is_significant"`
	PValue          *float64       `json:"p_value" yaml:"p_value"`
	WinningVariant  string         `json:"winning_variant,omitempty" yaml:"winning_variant,omitempty"`
	Lift            *float64       `json:"lift_percentage" yaml:"lift_percentage"`
	Recommendation  string         `json:"recommendation" yaml:"recommendation"`
}

// Stats returns the stats for variant, if present in the report.
func (r *Report) Stats(variant string) (VariantStats, bool) {
	for _, vs := range r.Variants {
		if vs.Variant == variant {
			return vs, true
		}
	}
	return VariantStats{}, false
}

// Analyze compares every variant found in history against the control.
// Challengers are compared in name order.
func Analyze(history []model.LeadScore, opts Options) (*Report, error) {
	if opts.ConfidenceLevel == 0 {
		opts.ConfidenceLevel = DefaultConfidenceLevel
	}
	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		return nil, eris.Errorf("experiment: confidence level %v must be in (0,1)", opts.ConfidenceLevel)
	}
	if !opts.Window.Since.IsZero() && !opts.Window.Until.IsZero() && opts.Window.Until.Before(opts.Window.Since) {
		return nil, eris.New("experiment: window ends before it starts")
	}
	if opts.Control == "" {
		opts.Control = scorer.ControlVariant
	}
	if opts.Strategy == nil {
		opts.Strategy = ThresholdTest{}
	}

	groups := GroupByVariant(history, opts.Window)

	report := &Report{
		TestName:        opts.TestName,
		Window:          opts.Window,
		ConfidenceLevel: opts.ConfidenceLevel,
		Strategy:        opts.Strategy.Name(),
		Control:         opts.Control,
	}

	control := ComputeStats(opts.Control, groups[opts.Control])
	report.Variants = append(report.Variants, control)
	for _, v := range sortedKeys(groups) {
		if v == opts.Control {
			continue
		}
		challenger := ComputeStats(v, groups[v])
		report.Variants = append(report.Variants, challenger)
		report.Comparisons = append(report.Comparisons, compare(control, challenger, opts))
	}

	if len(report.Comparisons) == 0 {
		report.Recommendation = "Not enough variants with data to compare. Continue running or check variant assignment."
	} else {
		head := report.Comparisons[0]
		report.Significant = head.Significant
		report.PValue = head.PValue
		report.WinningVariant = head.Winner
		report.Lift = head.Lift
		report.Recommendation = head.Recommendation
	}

	zap.L().Info("experiment: analyzed test",
		zap.String("test", opts.TestName),
		zap.String("strategy", report.Strategy),
		zap.Int("variants", len(report.Variants)),
		zap.Bool("significant", report.Significant),
	)
	return report, nil
}

func compare(control, challenger VariantStats, opts Options) Comparison {
	c := Comparison{
		Control:        control.Variant,
		Challenger:     challenger.Variant,
		ControlRate:    control.ConversionRate(),
		ChallengerRate: challenger.ConversionRate(),
	}

	out := opts.Strategy.Compare(control, challenger, opts.ConfidenceLevel)
	c.Sufficient = out.Sufficient
	if !out.Sufficient {
		c.Recommendation = fmt.Sprintf(
			"Test is not statistically significant: insufficient data (need at least %d samples per variant). Continue running or increase sample size.",
			effectiveMinSamples(out.MinSamples))
		return c
	}

	c.Significant = out.Significant
	c.PValue = out.PValue
	if c.ControlRate > 0 {
		lift := (c.ChallengerRate - c.ControlRate) / c.ControlRate * 100
		c.Lift = &lift
	}
	if c.ChallengerRate > c.ControlRate {
		c.Winner = c.Challenger
	} else {
		c.Winner = c.Control
	}
	c.Recommendation = recommend(c)
	return c
}

func recommend(c Comparison) string {
	switch {
	case !c.Significant:
		return "Test is not statistically significant. Continue running or increase sample size."
	case c.Lift == nil:
		return "Unable to compute lift: control has no high-quality leads. Review test setup."
	case math.Abs(*c.Lift) < smallLiftPercent:
		return fmt.Sprintf("Winning variant: %s, but lift is small (%.1f%%). Statistically significant but practically small; weigh qualitatively.",
			c.Winner, *c.Lift)
	case *c.Lift > 0:
		return fmt.Sprintf("Implement %s - shows %.1f%% improvement in conversion rate.", c.Challenger, *c.Lift)
	default:
		return fmt.Sprintf("Stick with control - %s shows %.1f%% decrease in performance.", c.Challenger, math.Abs(*c.Lift))
	}
}
