package scorer

import "time"

// QualityFactors records which completeness flags were set.
type QualityFactors struct {
	HasWebsite         bool    `json:"has_website"`
	HasPhone           bool    `json:"has_phone"`
	HasEmailDomain     bool    `json:"has_email_domain"`
	HasCompleteAddress bool    `json:"has_complete_address"`
	HasTaxID           bool    `json:"has_tax_id"`
	RecentlyUpdated    bool    `json:"recent_update"`
	Score              float64 `json:"final_score"`
}

// FlagsSet returns how many completeness flags are true.
func (f QualityFactors) FlagsSet() int {
	n := 0
	for _, b := range []bool{f.HasWebsite, f.HasPhone, f.HasEmailDomain, f.HasCompleteAddress, f.HasTaxID, f.RecentlyUpdated} {
		if b {
			n++
		}
	}
	return n
}

// QualityScorer turns record completeness into a bounded point total.
type QualityScorer struct {
	cfg DataQualityConfig
}

// NewQualityScorer returns a scorer using the given flag weights.
func NewQualityScorer(cfg DataQualityConfig) QualityScorer {
	return QualityScorer{cfg: cfg}
}

// Score sums the weights of the flags present on in. The recency flag is
// evaluated against now, so the same record can score differently once its
// last update ages past the recency window.
func (s QualityScorer) Score(in Input, now time.Time) (float64, QualityFactors) {
	f := QualityFactors{
		HasWebsite:         in.Website != "",
		HasPhone:           in.Phone != "",
		HasEmailDomain:     in.EmailDomain != "",
		HasCompleteAddress: in.StreetAddress != "" && in.City != "" && in.State != "",
		HasTaxID:           in.TaxID != "",
	}
	if in.LastUpdatedAt != nil {
		cutoff := now.AddDate(0, 0, -s.cfg.RecentDays)
		f.RecentlyUpdated = in.LastUpdatedAt.After(cutoff)
	}

	var points int
	if f.HasWebsite {
		points += s.cfg.Website
	}
	if f.HasPhone {
		points += s.cfg.Phone
	}
	if f.HasEmailDomain {
		points += s.cfg.EmailDomain
	}
	if f.HasCompleteAddress {
		points += s.cfg.Address
	}
	if f.HasTaxID {
		points += s.cfg.TaxID
	}
	if f.RecentlyUpdated {
		points += s.cfg.RecentData
	}

	f.Score = clamp(float64(points), 0, float64(s.cfg.MaxScore))
	return f.Score, f
}
