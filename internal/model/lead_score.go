package model

import (
	"encoding/json"
	"time"
)

// Quality thresholds shared by reporting and CRM routing.
const (
	HighQualityThreshold   = 80
	MediumQualityThreshold = 60
)

// LeadScore is one persisted scoring result. A company accumulates a history
// of these; the experiment analyzer reads them back grouped by Variant.
type LeadScore struct {
	ID                string          `json:"id"`
	CompanyID         string          `json:"company_id"`
	TotalScore        int             `json:"total_score"`
	Grade             string          `json:"grade"`
	IndustryScore     float64         `json:"industry_score"`
	SizeScore         float64         `json:"size_score"`
	ContactScore      float64         `json:"contact_score"`
	DataQualityScore  float64         `json:"data_quality_score"`
	Factors           json.RawMessage `json:"factors,omitempty"`
	Reasons           []string        `json:"reasons"`
	Recommendation    string          `json:"recommendation"`
	IndustryRiskLevel string          `json:"industry_risk_level"`
	IndustryWeight    float64         `json:"industry_weight"`
	EmployeeCount     int             `json:"employee_count"`
	SizeCategory      string          `json:"size_category"`
	Variant           string          `json:"variant"`
	ScoringVersion    string          `json:"scoring_version"`
	ConfigHash        string          `json:"config_hash,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// IsHighQuality reports whether the lead qualifies for immediate outreach.
func (s LeadScore) IsHighQuality() bool {
	return s.TotalScore >= HighQualityThreshold
}

// IsMediumQuality reports whether the lead belongs in nurturing.
func (s LeadScore) IsMediumQuality() bool {
	return s.TotalScore >= MediumQualityThreshold && s.TotalScore < HighQualityThreshold
}
