package scorer

import (
	"fmt"
	"strings"
)

const recommendationSeparator = " | "

// Size thresholds for the size-fit reason outside the optimal band.
const (
	largeCompanyThreshold = 1000
	smallCompanyThreshold = 50
)

// Reasons renders the ordered, human-readable explanation of a score.
func Reasons(f Factors) []string {
	var reasons []string

	desc := f.Industry.Description
	switch f.Industry.RiskLevel {
	case RiskLow:
		reasons = append(reasons, "Low-risk industry: "+desc)
	case RiskHigh:
		reasons = append(reasons, "High-risk industry: "+desc)
	}

	switch {
	case f.Size.InOptimalRange:
		reasons = append(reasons, fmt.Sprintf("Optimal company size: %d employees", f.Size.EmployeeCount))
	case f.Size.EmployeeCount > largeCompanyThreshold:
		reasons = append(reasons, "Large company size may indicate complex decision-making")
	case f.Size.EmployeeCount < smallCompanyThreshold:
		reasons = append(reasons, "Small company size may limit insurance budget")
	}

	c := f.Contacts
	if c.DecisionMakers > 0 {
		reasons = append(reasons, fmt.Sprintf("Found %d decision-maker contact(s)", c.DecisionMakers))
	}
	if c.Executives > 0 {
		reasons = append(reasons, fmt.Sprintf("Found %d executive contact(s)", c.Executives))
	}
	if c.HRContacts > 0 {
		reasons = append(reasons, fmt.Sprintf("Found %d HR/benefits contact(s)", c.HRContacts))
	}
	if c.VerifiedEmails > 0 {
		reasons = append(reasons, fmt.Sprintf("Found %d verified email address(es)", c.VerifiedEmails))
	}
	if c.Total == 0 {
		reasons = append(reasons, "No contacts found - may require additional prospecting")
	}

	switch n := f.DataQuality.FlagsSet(); {
	case n >= 4:
		reasons = append(reasons, "High data quality with complete company information")
	case n <= 2:
		reasons = append(reasons, "Limited data quality - may need enrichment")
	}

	return reasons
}

// Recommendation renders the advisory next steps for a lead.
func Recommendation(total int, f Factors) string {
	var recs []string
	switch {
	case total >= 80:
		recs = append(recs,
			"High-priority lead - prioritize for immediate outreach",
			"Consider direct executive outreach given strong fit")
	case total >= 60:
		recs = append(recs,
			"Qualified lead - include in regular nurturing campaign",
			"Consider industry-specific messaging approach")
	default:
		recs = append(recs,
			"Lower priority - may benefit from additional enrichment",
			"Consider automated nurturing sequence first")
	}

	if f.Size.InOptimalRange {
		recs = append(recs, "Optimal size for group health insurance - emphasize cost savings")
	}
	if f.Contacts.Total == 0 {
		recs = append(recs, "High priority: Find decision-maker contacts before outreach")
	}
	if !f.DataQuality.HasWebsite {
		recs = append(recs, "Research company website and online presence")
	}

	return strings.Join(recs, recommendationSeparator)
}
