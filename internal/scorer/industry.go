package scorer

import "strings"

// IndustryMatch is the outcome of an industry table lookup.
type IndustryMatch struct {
	IndustryWeight
	// MatchedCode is the table key that matched, or "" for the default entry.
	MatchedCode string
}

// IndustryTable resolves NAICS codes to industry weights.
type IndustryTable struct {
	entries  map[string]IndustryWeight
	fallback IndustryWeight
}

// NewIndustryTable builds a lookup table over the configured entries.
func NewIndustryTable(entries map[string]IndustryWeight, fallback IndustryWeight) *IndustryTable {
	cp := make(map[string]IndustryWeight, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return &IndustryTable{entries: cp, fallback: fallback}
}

// Lookup returns the weight for a NAICS code. An exact match wins; otherwise
// the query is truncated one character at a time, down to two characters, and
// the first truncation present in the table is used. Codes with no match
// resolve to the default entry.
func (t *IndustryTable) Lookup(naicsCode string) IndustryMatch {
	code := strings.TrimSpace(naicsCode)
	if code == "" {
		return IndustryMatch{IndustryWeight: t.fallback}
	}
	if iw, ok := t.entries[code]; ok {
		return IndustryMatch{IndustryWeight: iw, MatchedCode: code}
	}
	for n := len(code) - 1; n >= 2; n-- {
		prefix := code[:n]
		if iw, ok := t.entries[prefix]; ok {
			return IndustryMatch{IndustryWeight: iw, MatchedCode: prefix}
		}
	}
	return IndustryMatch{IndustryWeight: t.fallback}
}

// Score returns base score times weight, capped at 100.
func (m IndustryMatch) Score() float64 {
	return clamp(float64(m.BaseScore)*m.Weight, 0, 100)
}
