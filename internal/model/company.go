package model

import "time"

// Company is a business record ingested from a government data source and
// enriched by the people-data providers.
type Company struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	NAICSCode          string     `json:"naics_code,omitempty"`
	NAICSDescription   string     `json:"naics_description,omitempty"`
	EmployeeCountExact int        `json:"employee_count_exact,omitempty"`
	EmployeeCountMin   int        `json:"employee_count_min,omitempty"`
	EmployeeCountMax   int        `json:"employee_count_max,omitempty"`
	EmployeeRange      string     `json:"employee_range,omitempty"` // free text, e.g. "51-200" or "500+"
	Website            string     `json:"website,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	EmailDomain        string     `json:"email_domain,omitempty"`
	StreetAddress      string     `json:"street_address,omitempty"`
	City               string     `json:"city,omitempty"`
	State              string     `json:"state,omitempty"`
	ZipCode            string     `json:"zip_code,omitempty"`
	EIN                string     `json:"ein,omitempty"`
	LeadScore          *int       `json:"lead_score,omitempty"`
	CRMID              string     `json:"crm_id,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// Contact is a person discovered at a company.
type Contact struct {
	ID              string `json:"id"`
	CompanyID       string `json:"company_id"`
	FullName        string `json:"full_name,omitempty"`
	Title           string `json:"title,omitempty"`
	Email           string `json:"email,omitempty"`
	IsDecisionMaker bool   `json:"is_decision_maker"`
	IsExecutive     bool   `json:"is_executive"`
	IsHRRelated     bool   `json:"is_hr_related"`
	EmailVerified   bool   `json:"email_verified"`
}

// CompanyWithContacts pairs a company with its discovered contacts and the
// time it was last scored (nil when never scored).
type CompanyWithContacts struct {
	Company      Company    `json:"company"`
	Contacts     []Contact  `json:"contacts"`
	LastScoredAt *time.Time `json:"last_scored_at,omitempty"`
}
