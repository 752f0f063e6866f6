package scorer

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
)

// ContactInput is the part of a contact record the contact scorer reads.
type ContactInput struct {
	IsDecisionMaker bool `json:"is_decision_maker"`
	IsExecutive     bool `json:"is_executive"`
	IsHRRelated     bool `json:"is_hr_related"`
	EmailVerified   bool `json:"email_verified"`
}

// Input is everything the engine needs to score one company. All fields but
// EntityID are optional; missing values fall back to documented defaults.
type Input struct {
	EntityID         string         `json:"entity_id"`
	Name             string         `json:"name,omitempty"`
	NAICSCode        string         `json:"naics_code,omitempty"`
	NAICSDescription string         `json:"naics_description,omitempty"`
	EmployeeCount    int            `json:"employee_count,omitempty"`
	EmployeeRange    string         `json:"employee_range,omitempty"`
	Website          string         `json:"website,omitempty"`
	Phone            string         `json:"phone,omitempty"`
	EmailDomain      string         `json:"email_domain,omitempty"`
	StreetAddress    string         `json:"street_address,omitempty"`
	City             string         `json:"city,omitempty"`
	State            string         `json:"state,omitempty"`
	TaxID            string         `json:"tax_id,omitempty"`
	LastUpdatedAt    *time.Time     `json:"last_updated_at,omitempty"`
	Contacts         []ContactInput `json:"contacts"`
}

// Validate rejects inputs the engine cannot attribute or interpret.
func (in Input) Validate() error {
	if strings.TrimSpace(in.EntityID) == "" {
		return eris.New("scorer: input has no entity id")
	}
	if in.EmployeeCount < 0 {
		return eris.Errorf("scorer: entity %s has negative employee count %d", in.EntityID, in.EmployeeCount)
	}
	return nil
}

// InputFromCompany assembles an Input from persisted company and contact
// records.
func InputFromCompany(c model.Company, contacts []model.Contact) Input {
	in := Input{
		EntityID:         c.ID,
		Name:             c.Name,
		NAICSCode:        c.NAICSCode,
		NAICSDescription: c.NAICSDescription,
		EmployeeCount:    EmployeeCount(c),
		EmployeeRange:    c.EmployeeRange,
		Website:          c.Website,
		Phone:            c.Phone,
		EmailDomain:      c.EmailDomain,
		StreetAddress:    c.StreetAddress,
		City:             c.City,
		State:            c.State,
		TaxID:            c.EIN,
		LastUpdatedAt:    c.UpdatedAt,
		Contacts:         make([]ContactInput, 0, len(contacts)),
	}
	for _, ct := range contacts {
		in.Contacts = append(in.Contacts, ContactInput{
			IsDecisionMaker: ct.IsDecisionMaker,
			IsExecutive:     ct.IsExecutive,
			IsHRRelated:     ct.IsHRRelated,
			EmailVerified:   ct.EmailVerified,
		})
	}
	return in
}

// EmployeeCount returns the best available headcount for a company: the
// exact count, else the midpoint of min and max, else min, else a value
// parsed from the free-text range. Returns 0 when nothing is usable.
func EmployeeCount(c model.Company) int {
	switch {
	case c.EmployeeCountExact > 0:
		return c.EmployeeCountExact
	case c.EmployeeCountMin > 0 && c.EmployeeCountMax > 0:
		return (c.EmployeeCountMin + c.EmployeeCountMax) / 2
	case c.EmployeeCountMin > 0:
		return c.EmployeeCountMin
	}
	return parseEmployeeRange(c.EmployeeRange)
}

func parseEmployeeRange(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		a, err1 := strconv.Atoi(strings.TrimSpace(lo))
		b, err2 := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(hi), "+"))
		if err1 != nil || err2 != nil {
			return 0
		}
		return (a + b) / 2
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "+"))
	if err != nil {
		return 0
	}
	return n
}
