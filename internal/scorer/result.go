package scorer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
)

// ComponentScores holds the four component scores before weighting.
type ComponentScores struct {
	Industry    float64 `json:"industry"`
	Size        float64 `json:"size"`
	Contact     float64 `json:"contact"`
	DataQuality float64 `json:"data_quality"`
}

// IndustryFactors explains the industry component.
type IndustryFactors struct {
	NAICSCode   string    `json:"naics_code"`
	MatchedCode string    `json:"matched_code"`
	Description string    `json:"naics_description"`
	BaseScore   int       `json:"base_score"`
	Weight      float64   `json:"weight"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Score       float64   `json:"final_score"`
}

// SizeFactors explains the size component.
type SizeFactors struct {
	EmployeeCount  int     `json:"employee_count"`
	EmployeeRange  string  `json:"employee_range,omitempty"`
	RangeLabel     string  `json:"range_label"`
	Category       string  `json:"size_category"`
	BaseScore      int     `json:"base_score"`
	Bonus          int     `json:"bonus_points"`
	InOptimalRange bool    `json:"in_optimal_range"`
	Score          float64 `json:"final_score"`
}

// Factors is the structured breakdown behind a result. Reasons and the
// recommendation are generated from it without recomputation.
type Factors struct {
	Industry    IndustryFactors `json:"industry"`
	Size        SizeFactors     `json:"size"`
	Contacts    ContactFactors  `json:"contacts"`
	DataQuality QualityFactors  `json:"data_quality"`
}

// Result is the output of scoring one input.
type Result struct {
	EntityID       string          `json:"entity_id"`
	TotalScore     int             `json:"total_score"`
	Grade          Grade           `json:"grade"`
	Components     ComponentScores `json:"component_scores"`
	Factors        Factors         `json:"factors"`
	Reasons        []string        `json:"reasons"`
	Recommendation string          `json:"recommendation"`
	Variant        string          `json:"variant"`
	ScoringVersion string          `json:"scoring_version"`
	ConfigHash     string          `json:"config_hash"`
}

// Record converts the result into a persistable LeadScore with a fresh ID.
func (r *Result) Record(createdAt time.Time) (model.LeadScore, error) {
	factors, err := json.Marshal(r.Factors)
	if err != nil {
		return model.LeadScore{}, err
	}
	reasons := r.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return model.LeadScore{
		ID:                uuid.NewString(),
		CompanyID:         r.EntityID,
		TotalScore:        r.TotalScore,
		Grade:             string(r.Grade),
		IndustryScore:     r.Components.Industry,
		SizeScore:         r.Components.Size,
		ContactScore:      r.Components.Contact,
		DataQualityScore:  r.Components.DataQuality,
		Factors:           factors,
		Reasons:           reasons,
		Recommendation:    r.Recommendation,
		IndustryRiskLevel: string(r.Factors.Industry.RiskLevel),
		IndustryWeight:    r.Factors.Industry.Weight,
		EmployeeCount:     r.Factors.Size.EmployeeCount,
		SizeCategory:      r.Factors.Size.Category,
		Variant:           r.Variant,
		ScoringVersion:    r.ScoringVersion,
		ConfigHash:        r.ConfigHash,
		CreatedBy:         "algorithm_" + r.Variant,
		CreatedAt:         createdAt.UTC(),
	}, nil
}
