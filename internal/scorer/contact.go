package scorer

// ContactFactors counts contacts by type. A single contact can land in
// several categories.
type ContactFactors struct {
	Total          int     `json:"total_contacts"`
	DecisionMakers int     `json:"decision_makers"`
	Executives     int     `json:"executives"`
	HRContacts     int     `json:"hr_contacts"`
	VerifiedEmails int     `json:"verified_emails"`
	Score          float64 `json:"final_score"`
}

// ContactScorer turns discovered contacts into a bounded point total.
type ContactScorer struct {
	cfg ContactConfig
}

// NewContactScorer returns a scorer using the given point values.
func NewContactScorer(cfg ContactConfig) ContactScorer {
	return ContactScorer{cfg: cfg}
}

// Score returns the capped contact score and the per-type counts.
func (s ContactScorer) Score(contacts []ContactInput) (float64, ContactFactors) {
	f := ContactFactors{Total: len(contacts)}
	if len(contacts) == 0 {
		return 0, f
	}
	for _, c := range contacts {
		if c.IsDecisionMaker {
			f.DecisionMakers++
		}
		if c.IsExecutive {
			f.Executives++
		}
		if c.IsHRRelated {
			f.HRContacts++
		}
		if c.EmailVerified {
			f.VerifiedEmails++
		}
	}

	points := f.DecisionMakers*s.cfg.DecisionMakerPoints +
		f.Executives*s.cfg.ExecutiveBonus +
		f.HRContacts*s.cfg.HRBonus +
		f.VerifiedEmails*s.cfg.VerifiedEmailBonus
	if f.Total >= s.cfg.MultipleContactsMin {
		points += s.cfg.MultipleContactsBonus
	}

	f.Score = clamp(float64(points), 0, float64(s.cfg.MaxScore))
	return f.Score, f
}
