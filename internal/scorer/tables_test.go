package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeFor_Boundaries(t *testing.T) {
	cases := map[int]Grade{
		0: GradeD, 54: GradeD, 55: GradeCMinus, 59: GradeCMinus,
		60: GradeC, 64: GradeC, 65: GradeCPlus, 69: GradeCPlus,
		70: GradeBMinus, 74: GradeBMinus, 75: GradeB, 79: GradeB,
		80: GradeBPlus, 84: GradeBPlus, 85: GradeAMinus, 89: GradeAMinus,
		90: GradeA, 94: GradeA, 95: GradeAPlus, 100: GradeAPlus,
	}
	for score, want := range cases {
		assert.Equal(t, want, GradeFor(score), "score %d", score)
	}
}

func TestGradeFor_Monotonic(t *testing.T) {
	order := map[Grade]int{GradeD: 0, GradeCMinus: 1, GradeC: 2, GradeCPlus: 3, GradeBMinus: 4,
		GradeB: 5, GradeBPlus: 6, GradeAMinus: 7, GradeA: 8, GradeAPlus: 9}
	prev := -1
	for s := 0; s <= 100; s++ {
		rank := order[GradeFor(s)]
		assert.GreaterOrEqual(t, rank, prev, "score %d", s)
		prev = rank
	}
}

func TestIndustryTable_Truncation(t *testing.T) {
	cfg := DefaultConfig()
	tbl := NewIndustryTable(cfg.Industries, cfg.DefaultIndustry)

	for _, code := range []string{"621111", "62111", "6211", "621"} {
		m := tbl.Lookup(code)
		assert.Equal(t, "621", m.MatchedCode, code)
		assert.Equal(t, 85, m.BaseScore, code)
	}

	m := tbl.Lookup("334111")
	assert.Equal(t, "33", m.MatchedCode)
	assert.Equal(t, RiskMedium, m.RiskLevel)

	m = tbl.Lookup("541511")
	assert.Equal(t, "541", m.MatchedCode)
}

func TestIndustryTable_Fallback(t *testing.T) {
	cfg := DefaultConfig()
	tbl := NewIndustryTable(cfg.Industries, cfg.DefaultIndustry)

	for _, code := range []string{"000000", "", "   ", "9"} {
		m := tbl.Lookup(code)
		assert.Equal(t, cfg.DefaultIndustry, m.IndustryWeight, "code %q", code)
		assert.Empty(t, m.MatchedCode)
	}
}

func TestIndustryMatch_ScoreClamped(t *testing.T) {
	m := IndustryMatch{IndustryWeight: IndustryWeight{BaseScore: 85, Weight: 1.8}}
	assert.Equal(t, 100.0, m.Score())

	m = IndustryMatch{IndustryWeight: IndustryWeight{BaseScore: 35, Weight: 0.7}}
	assert.InDelta(t, 24.5, m.Score(), 1e-9)
}

func TestSizeTable_Lookup(t *testing.T) {
	tbl, err := NewSizeTable(DefaultConfig().Size)
	require.NoError(t, err)

	cases := []struct {
		n        int
		category string
	}{
		{0, "micro"},
		{1, "micro"},
		{10, "micro"},
		{11, "small"},
		{100, "small-medium"},
		{101, "medium"},
		{500, "medium-large"},
		{1000, "large"},
		{5000, "enterprise"},
		{5001, "mega"},
		{10_000_000, "mega"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.category, tbl.Lookup(tc.n).Category, "n=%d", tc.n)
	}
}

func TestSizeTable_Score(t *testing.T) {
	tbl, err := NewSizeTable(DefaultConfig().Size)
	require.NoError(t, err)

	score, bucket, optimal := tbl.Score(150)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, "101-250", bucket.Label)
	assert.True(t, optimal)

	score, _, optimal = tbl.Score(100)
	assert.Equal(t, 75.0, score)
	assert.True(t, optimal)

	score, _, optimal = tbl.Score(30)
	assert.Equal(t, 40.0, score)
	assert.False(t, optimal)
}

func TestSizeTable_UnmatchedFallsBackToSmallest(t *testing.T) {
	tbl, err := NewSizeTable(SizeConfig{
		Ranges: []SizeRange{
			{Label: "50-100", Score: 60, Category: "mid"},
			{Label: "10-49", Score: 30, Category: "small"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "small", tbl.Lookup(5).Category)
	assert.Equal(t, "small", tbl.Lookup(500).Category)
}

func TestParseRange(t *testing.T) {
	lo, hi, err := parseRange("101-250")
	require.NoError(t, err)
	assert.Equal(t, 101, lo)
	assert.Equal(t, 250, hi)

	lo, hi, err = parseRange("5000+")
	require.NoError(t, err)
	assert.Equal(t, 5000, lo)
	assert.Equal(t, -1, hi)

	for _, bad := range []string{"", "abc", "10-", "50-10", "x+"} {
		_, _, err := parseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseEmployeeRange(t *testing.T) {
	assert.Equal(t, 75, parseEmployeeRange("50-100"))
	assert.Equal(t, 1000, parseEmployeeRange("1,000+"))
	assert.Equal(t, 42, parseEmployeeRange("42"))
	assert.Equal(t, 0, parseEmployeeRange("lots"))
	assert.Equal(t, 0, parseEmployeeRange(""))
}

func TestContactScorer_Bounded(t *testing.T) {
	s := NewContactScorer(DefaultConfig().Contacts)

	contacts := make([]ContactInput, 1000)
	for i := range contacts {
		contacts[i] = ContactInput{IsDecisionMaker: true, IsExecutive: true, IsHRRelated: true, EmailVerified: true}
	}
	score, f := s.Score(contacts)
	assert.Equal(t, 30.0, score)
	assert.Equal(t, 1000, f.DecisionMakers)
	assert.Equal(t, 1000, f.HRContacts)
}

func TestContactScorer_Points(t *testing.T) {
	s := NewContactScorer(DefaultConfig().Contacts)

	score, f := s.Score(nil)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 0, f.Total)

	score, _ = s.Score([]ContactInput{{IsHRRelated: true}})
	assert.Equal(t, 8.0, score)

	// Three plain contacts earn only the multiple-contacts bonus.
	score, f = s.Score([]ContactInput{{}, {}, {}})
	assert.Equal(t, 5.0, score)
	assert.Equal(t, 3, f.Total)
}

func TestQualityScorer(t *testing.T) {
	s := NewQualityScorer(DefaultConfig().DataQuality)

	score, f := s.Score(Input{Website: "x", Phone: "y", StreetAddress: "1 Main", City: "Austin"}, fixedNow)
	assert.Equal(t, 10.0, score)
	assert.False(t, f.HasCompleteAddress)
	assert.Equal(t, 2, f.FlagsSet())

	edge := fixedNow.AddDate(0, 0, -30)
	_, f = s.Score(Input{LastUpdatedAt: &edge}, fixedNow)
	assert.False(t, f.RecentlyUpdated)

	inside := edge.Add(time.Minute)
	_, f = s.Score(Input{LastUpdatedAt: &inside}, fixedNow)
	assert.True(t, f.RecentlyUpdated)
}

func TestValidateConfig_Defaults(t *testing.T) {
	require.NoError(t, ValidateConfig(DefaultConfig()))
}

func TestValidateConfig_CrossFieldRules(t *testing.T) {
	t.Run("traffic sum", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ABTest.Enabled = true
		cfg.ABTest.Traffic[1].Weight = 0.3
		err := ValidateConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sum to 1")
	})
	t.Run("traffic variant missing", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ABTest.Traffic = append(cfg.ABTest.Traffic, TrafficSplit{Variant: "ghost", Weight: 0})
		err := ValidateConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"ghost"`)
	})
	t.Run("control missing", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ABTest.Control = "nope"
		require.Error(t, ValidateConfig(cfg))
	})
	t.Run("enabled without traffic", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ABTest.Enabled = true
		cfg.ABTest.Traffic = nil
		err := ValidateConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no variant")
	})
	t.Run("bad size label", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Size.Ranges[0].Label = "ten"
		require.Error(t, ValidateConfig(cfg))
	})
	t.Run("bad industry key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Industries["1234567"] = cfg.DefaultIndustry
		require.Error(t, ValidateConfig(cfg))
	})
	t.Run("base score out of range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DefaultIndustry.BaseScore = 150
		require.Error(t, ValidateConfig(cfg))
	})
}

func TestConfigHash_Stable(t *testing.T) {
	a := ConfigHash(DefaultConfig())
	b := ConfigHash(DefaultConfig())
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	cfg := DefaultConfig()
	cfg.Contacts.MaxScore = 25
	assert.NotEqual(t, a, ConfigHash(cfg))
}
