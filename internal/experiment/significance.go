package experiment

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Defaults for significance testing.
const (
	DefaultMinSampleSize   = 30
	DefaultMinDifference   = 0.05
	DefaultConfidenceLevel = 0.95
)

// Outcome is the result of comparing one challenger to the control.
type Outcome struct {
	// Sufficient is false when either side is below the minimum sample size.
	Sufficient  bool
	Significant bool
	// PValue is nil when the strategy does not compute one.
	PValue *float64
	// MinSamples is the per-variant minimum the strategy applied.
	MinSamples int
}

// Significance decides whether the difference in conversion rate between
// a control and a challenger is meaningful.
type Significance interface {
	Name() string
	Compare(control, challenger VariantStats, confidence float64) Outcome
}

// ThresholdTest flags a comparison as significant when both sides have
// enough samples and their rates differ by more than MinDifference. It does
// not compute a p-value.
type ThresholdTest struct {
	MinSamples    int
	MinDifference float64
}

// Name implements Significance.
func (ThresholdTest) Name() string { return "threshold" }

// Compare implements Significance. The confidence level is ignored.
func (t ThresholdTest) Compare(control, challenger VariantStats, _ float64) Outcome {
	minSamples := effectiveMinSamples(t.MinSamples)
	if !enoughSamples(control, challenger, minSamples) {
		return Outcome{MinSamples: minSamples}
	}
	minDiff := t.MinDifference
	if minDiff <= 0 {
		minDiff = DefaultMinDifference
	}
	diff := math.Abs(challenger.ConversionRate() - control.ConversionRate())
	return Outcome{Sufficient: true, Significant: diff > minDiff, MinSamples: minSamples}
}

// ZTest is a two-sided, pooled two-proportion z-test on the high-quality
// rate. Significant means p < 1 - confidence.
type ZTest struct {
	MinSamples int
}

// Name implements Significance.
func (ZTest) Name() string { return "ztest" }

// Compare implements Significance.
func (z ZTest) Compare(control, challenger VariantStats, confidence float64) Outcome {
	minSamples := effectiveMinSamples(z.MinSamples)
	if !enoughSamples(control, challenger, minSamples) {
		return Outcome{MinSamples: minSamples}
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = DefaultConfidenceLevel
	}

	n1, n2 := float64(control.SampleSize), float64(challenger.SampleSize)
	x1, x2 := float64(control.HighQualityCount), float64(challenger.HighQualityCount)
	pooled := (x1 + x2) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))

	p := 1.0
	if se > 0 {
		zscore := (x2/n2 - x1/n1) / se
		p = 2 * (1 - distuv.UnitNormal.CDF(math.Abs(zscore)))
	}
	return Outcome{Sufficient: true, Significant: p < 1-confidence, PValue: &p, MinSamples: minSamples}
}

// StrategyByName returns the named strategy, or false if unknown.
func StrategyByName(name string) (Significance, bool) {
	switch name {
	case "", "threshold":
		return ThresholdTest{}, true
	case "ztest":
		return ZTest{}, true
	}
	return nil, false
}

func effectiveMinSamples(n int) int {
	if n <= 0 {
		return DefaultMinSampleSize
	}
	return n
}

func enoughSamples(a, b VariantStats, minSamples int) bool {
	return a.SampleSize >= minSamples && b.SampleSize >= minSamples
}
