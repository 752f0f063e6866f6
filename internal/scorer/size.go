package scorer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

type sizeBucket struct {
	SizeRange
	min, max int // max < 0 means open-ended
}

func (b sizeBucket) contains(n int) bool {
	return n >= b.min && (b.max < 0 || n <= b.max)
}

// SizeTable resolves employee counts to size buckets.
type SizeTable struct {
	buckets  []sizeBucket
	smallest sizeBucket
	cfg      SizeConfig
}

// NewSizeTable parses the configured range labels. It fails on a label that
// is neither "min-max" nor "min+".
func NewSizeTable(cfg SizeConfig) (*SizeTable, error) {
	if len(cfg.Ranges) == 0 {
		return nil, eris.New("scorer: size table has no ranges")
	}
	t := &SizeTable{cfg: cfg}
	for i, r := range cfg.Ranges {
		lo, hi, err := parseRange(r.Label)
		if err != nil {
			return nil, err
		}
		b := sizeBucket{SizeRange: r, min: lo, max: hi}
		t.buckets = append(t.buckets, b)
		if i == 0 || lo < t.smallest.min {
			t.smallest = b
		}
	}
	return t, nil
}

// Lookup returns the first bucket, in table order, that contains n. A zero
// count or a count no bucket contains falls back to the smallest bucket.
func (t *SizeTable) Lookup(n int) SizeRange {
	if n > 0 {
		for _, b := range t.buckets {
			if b.contains(n) {
				return b.SizeRange
			}
		}
	}
	return t.smallest.SizeRange
}

// InOptimalRange reports whether n falls in [OptimalMin, OptimalMax].
func (t *SizeTable) InOptimalRange(n int) bool {
	return n >= t.cfg.OptimalMin && n <= t.cfg.OptimalMax
}

// Score returns the bucket score plus its bonus, plus the optimal-range
// bonus when applicable, capped at 100.
func (t *SizeTable) Score(n int) (float64, SizeRange, bool) {
	bucket := t.Lookup(n)
	optimal := t.InOptimalRange(n)
	points := bucket.Score + bucket.Bonus
	if optimal {
		points += t.cfg.OptimalBonus
	}
	return clamp(float64(points), 0, 100), bucket, optimal
}

// parseRange parses "min-max" or "min+". Open-ended ranges return max = -1.
func parseRange(label string) (int, int, error) {
	s := strings.TrimSpace(label)
	if strings.HasSuffix(s, "+") {
		lo, err := strconv.Atoi(strings.TrimSuffix(s, "+"))
		if err != nil || lo < 0 {
			return 0, 0, eris.Errorf("scorer: invalid size range %q", label)
		}
		return lo, -1, nil
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("scorer: invalid size range %q", label)
	}
	lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || lo < 0 || hi < lo {
		return 0, 0, eris.Errorf("scorer: invalid size range %q", label)
	}
	return lo, hi, nil
}

// String renders the bucket for log output.
func (r SizeRange) String() string {
	return fmt.Sprintf("%s (%s)", r.Label, r.Category)
}
