// Package experiment analyzes persisted lead score history to compare
// scoring variants under an A/B test.
package experiment

import (
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
)

// Cut points for the coarse reporting histogram. These differ from the
// grade ladder used on individual results.
const (
	histogramA = 90
	histogramB = 80
	histogramC = 60
)

// Window bounds the creation time of scores considered by an analysis. A
// zero bound is open.
type Window struct {
	Since time.Time `json:"since" yaml:"since"`
	Until time.Time `json:"until" yaml:"until"`
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && t.After(w.Until) {
		return false
	}
	return true
}

// Distribution is the A/B/C/D histogram of total scores.
type Distribution struct {
	A int `json:"A" yaml:"A"`
	B int `json:"B" yaml:"B"`
	C int `json:"C" yaml:"C"`
	D int `json:"D" yaml:"D"`
}

func (d *Distribution) add(score int) {
	switch {
	case score >= histogramA:
		d.A++
	case score >= histogramB:
		d.B++
	case score >= histogramC:
		d.C++
	default:
		d.D++
	}
}

// VariantStats summarizes the scores produced by one variant.
type VariantStats struct {
	Variant            string       `json:"variant" yaml:"variant"`
	SampleSize         int          `json:"sample_size" yaml:"sample_size"`
	MeanScore          float64      `json:"avg_score" yaml:"avg_score"`
	MedianScore        float64      `json:"median_score" yaml:"median_score"`
	StdDevScore        float64      `json:"stddev_score" yaml:"stddev_score"`
	HighQualityCount   int          `json:"high_quality_count" yaml:"high_quality_count"`
	MediumQualityCount int          `json:"medium_quality_count" yaml:"medium_quality_count"`
	HighQualityRate    float64      `json:"high_quality_rate" yaml:"high_quality_rate"`
	MediumQualityRate  float64      `json:"medium_quality_rate" yaml:"medium_quality_rate"`
	Distribution       Distribution `json:"score_distribution" yaml:"score_distribution"`
}

// ConversionRate is the proxy conversion metric: the high-quality rate.
func (s VariantStats) ConversionRate() float64 {
	return s.HighQualityRate
}

// ComputeStats summarizes the given scores. They are assumed to belong to a
// single variant.
func ComputeStats(variant string, scores []model.LeadScore) VariantStats {
	vs := VariantStats{Variant: variant, SampleSize: len(scores)}
	if len(scores) == 0 {
		return vs
	}

	totals := make([]float64, len(scores))
	for i, s := range scores {
		totals[i] = float64(s.TotalScore)
		if s.IsHighQuality() {
			vs.HighQualityCount++
		}
		if s.IsMediumQuality() {
			vs.MediumQualityCount++
		}
		vs.Distribution.add(s.TotalScore)
	}
	sort.Float64s(totals)

	n := float64(len(totals))
	vs.MeanScore = stat.Mean(totals, nil)
	vs.MedianScore = totals[len(totals)/2]
	if len(totals) > 1 {
		vs.StdDevScore = stat.StdDev(totals, nil)
	}
	vs.HighQualityRate = float64(vs.HighQualityCount) / n
	vs.MediumQualityRate = float64(vs.MediumQualityCount) / n
	return vs
}

// VariantOf returns the variant a persisted score was produced by. Older
// rows only carry the variant in the "algorithm_<variant>" creator tag.
func VariantOf(s model.LeadScore) string {
	if s.Variant != "" {
		return s.Variant
	}
	if v, ok := strings.CutPrefix(s.CreatedBy, "algorithm_"); ok {
		return v
	}
	return ""
}

// GroupByVariant buckets scores inside w by variant. Scores with no
// attributable variant are dropped.
func GroupByVariant(history []model.LeadScore, w Window) map[string][]model.LeadScore {
	groups := make(map[string][]model.LeadScore)
	for _, s := range history {
		if !w.Contains(s.CreatedAt) {
			continue
		}
		v := VariantOf(s)
		if v == "" {
			continue
		}
		groups[v] = append(groups[v], s)
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
