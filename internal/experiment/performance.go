package experiment

import (
	"sort"
	"time"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
)

// FunnelStage counts leads as they pass each quality gate for one variant.
type FunnelStage struct {
	Variant           string  `json:"variant" yaml:"variant"`
	Total             int     `json:"total_leads" yaml:"total_leads"`
	Qualified         int     `json:"qualified_leads" yaml:"qualified_leads"`
	HighQuality       int     `json:"high_quality_leads" yaml:"high_quality_leads"`
	QualificationRate float64 `json:"qualification_rate" yaml:"qualification_rate"`
	HighQualityRate   float64 `json:"high_quality_rate" yaml:"high_quality_rate"`
	AverageScore      float64 `json:"avg_score" yaml:"avg_score"`
}

// SegmentStats is the count, average and high-quality rate of one group.
type SegmentStats struct {
	Key              string  `json:"key" yaml:"key"`
	Count            int     `json:"count" yaml:"count"`
	AverageScore     float64 `json:"avg_score" yaml:"avg_score"`
	HighQualityCount int     `json:"high_quality_count" yaml:"high_quality_count"`
	HighQualityRate  float64 `json:"high_quality_rate" yaml:"high_quality_rate"`
}

// DailyPoint is one UTC calendar day of a variant's trend.
type DailyPoint struct {
	Date             string  `json:"date" yaml:"date"`
	Count            int     `json:"count" yaml:"count"`
	AverageScore     float64 `json:"avg_score" yaml:"avg_score"`
	HighQualityCount int     `json:"high_quality_count" yaml:"high_quality_count"`
	HighQualityRate  float64 `json:"high_quality_rate" yaml:"high_quality_rate"`
}

// Performance is the detailed per-variant breakdown of a test period.
type Performance struct {
	TestName     string                    `json:"test_name" yaml:"test_name"`
	Window       Window                    `json:"window" yaml:"window"`
	DurationDays int                       `json:"duration_days" yaml:"duration_days"`
	Funnel       []FunnelStage             `json:"conversion_funnel" yaml:"conversion_funnel"`
	ByRiskLevel  map[string][]SegmentStats `json:"industry_performance" yaml:"industry_performance"`
	BySize       map[string][]SegmentStats `json:"size_performance" yaml:"size_performance"`
	Daily        map[string][]DailyPoint   `json:"daily_trends" yaml:"daily_trends"`
}

// Funnel returns one funnel per variant, ordered by variant name.
func Funnel(history []model.LeadScore, w Window) []FunnelStage {
	groups := GroupByVariant(history, w)
	out := make([]FunnelStage, 0, len(groups))
	for _, v := range sortedKeys(groups) {
		scores := groups[v]
		f := FunnelStage{Variant: v, Total: len(scores)}
		var sum int
		for _, s := range scores {
			sum += s.TotalScore
			if s.TotalScore >= model.MediumQualityThreshold {
				f.Qualified++
			}
			if s.IsHighQuality() {
				f.HighQuality++
			}
		}
		if f.Total > 0 {
			n := float64(f.Total)
			f.QualificationRate = float64(f.Qualified) / n
			f.HighQualityRate = float64(f.HighQuality) / n
			f.AverageScore = float64(sum) / n
		}
		out = append(out, f)
	}
	return out
}

// DailyTrends returns each variant's per-day series, oldest day first.
func DailyTrends(history []model.LeadScore, w Window) map[string][]DailyPoint {
	out := make(map[string][]DailyPoint)
	for v, scores := range GroupByVariant(history, w) {
		days := segment(scores, func(s model.LeadScore) string {
			return s.CreatedAt.UTC().Format(time.DateOnly)
		})
		points := make([]DailyPoint, 0, len(days))
		for _, d := range days {
			points = append(points, DailyPoint{
				Date:             d.Key,
				Count:            d.Count,
				AverageScore:     d.AverageScore,
				HighQualityCount: d.HighQualityCount,
				HighQualityRate:  d.HighQualityRate,
			})
		}
		out[v] = points
	}
	return out
}

// SegmentByVariant groups each variant's scores by key.
func SegmentByVariant(history []model.LeadScore, w Window, key func(model.LeadScore) string) map[string][]SegmentStats {
	out := make(map[string][]SegmentStats)
	for v, scores := range GroupByVariant(history, w) {
		out[v] = segment(scores, key)
	}
	return out
}

// PerformanceFor assembles the funnel, segment and trend views of a test.
func PerformanceFor(history []model.LeadScore, testName string, w Window) *Performance {
	p := &Performance{
		TestName:    testName,
		Window:      w,
		Funnel:      Funnel(history, w),
		ByRiskLevel: SegmentByVariant(history, w, byRiskLevel),
		BySize:      SegmentByVariant(history, w, bySizeCategory),
		Daily:       DailyTrends(history, w),
	}
	if !w.Since.IsZero() && !w.Until.IsZero() {
		p.DurationDays = int(w.Until.Sub(w.Since).Hours() / 24)
	}
	return p
}

// Analytics is the variant-independent breakdown of all scores.
type Analytics struct {
	Total       int            `json:"total" yaml:"total"`
	ByGrade     []SegmentStats `json:"score_distribution" yaml:"score_distribution"`
	ByRiskLevel []SegmentStats `json:"industry_performance" yaml:"industry_performance"`
	BySize      []SegmentStats `json:"size_performance" yaml:"size_performance"`
}

// ScoringAnalytics groups every score by grade, industry risk level and
// size category.
func ScoringAnalytics(history []model.LeadScore) *Analytics {
	return &Analytics{
		Total:       len(history),
		ByGrade:     segment(history, func(s model.LeadScore) string { return s.Grade }),
		ByRiskLevel: segment(history, byRiskLevel),
		BySize:      segment(history, bySizeCategory),
	}
}

func byRiskLevel(s model.LeadScore) string { return orUnknown(s.IndustryRiskLevel) }

func bySizeCategory(s model.LeadScore) string { return orUnknown(s.SizeCategory) }

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// segment groups scores by key and returns the groups in key order.
func segment(scores []model.LeadScore, key func(model.LeadScore) string) []SegmentStats {
	type acc struct{ count, sum, high int }
	groups := make(map[string]*acc)
	for _, s := range scores {
		k := key(s)
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.count++
		a.sum += s.TotalScore
		if s.IsHighQuality() {
			a.high++
		}
	}

	out := make([]SegmentStats, 0, len(groups))
	for k, a := range groups {
		n := float64(a.count)
		out = append(out, SegmentStats{
			Key:              k,
			Count:            a.count,
			AverageScore:     float64(a.sum) / n,
			HighQualityCount: a.high,
			HighQualityRate:  float64(a.high) / n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
