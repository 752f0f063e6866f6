// Package scorer implements the lead scoring engine: industry and size
// tables, contact and data-quality scorers, deterministic A/B variant
// assignment and the weighted combination into a graded result.
package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// RiskLevel classifies how risky an industry is to insure.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ControlVariant is the variant used when A/B testing is disabled.
const ControlVariant = "control"

// IndustryWeight is one entry of the NAICS industry table.
type IndustryWeight struct {
	Code        string    `yaml:"code" mapstructure:"code" json:"code"`
	Description string    `yaml:"description" mapstructure:"description" json:"description"`
	Weight      float64   `yaml:"weight" mapstructure:"weight" json:"weight" validate:"gte=0,lte=2"`
	BaseScore   int       `yaml:"base_score" mapstructure:"base_score" json:"base_score" validate:"gte=0,lte=100"`
	RiskLevel   RiskLevel `yaml:"risk_level" mapstructure:"risk_level" json:"risk_level" validate:"oneof=low medium high"`
}

// SizeRange is one employee-count bucket. Label is "min-max" or "min+".
type SizeRange struct {
	Label    string `yaml:"label" mapstructure:"label" json:"label" validate:"required"`
	Score    int    `yaml:"score" mapstructure:"score" json:"score" validate:"gte=0,lte=100"`
	Bonus    int    `yaml:"bonus" mapstructure:"bonus" json:"bonus" validate:"gte=0,lte=100"`
	Category string `yaml:"category" mapstructure:"category" json:"category" validate:"required"`
}

// SizeConfig holds the ordered size buckets and the optimal-range bonus rule.
type SizeConfig struct {
	Ranges       []SizeRange `yaml:"ranges" mapstructure:"ranges" json:"ranges" validate:"min=1,dive"`
	OptimalMin   int         `yaml:"optimal_min" mapstructure:"optimal_min" json:"optimal_min" validate:"gte=0"`
	OptimalMax   int         `yaml:"optimal_max" mapstructure:"optimal_max" json:"optimal_max" validate:"gtefield=OptimalMin"`
	OptimalBonus int         `yaml:"optimal_bonus" mapstructure:"optimal_bonus" json:"optimal_bonus" validate:"gte=0,lte=100"`
}

// ContactConfig holds the per-contact point values.
type ContactConfig struct {
	DecisionMakerPoints   int `yaml:"decision_maker_points" mapstructure:"decision_maker_points" json:"decision_maker_points" validate:"gte=0"`
	ExecutiveBonus        int `yaml:"executive_bonus" mapstructure:"executive_bonus" json:"executive_bonus" validate:"gte=0"`
	HRBonus               int `yaml:"hr_bonus" mapstructure:"hr_bonus" json:"hr_bonus" validate:"gte=0"`
	VerifiedEmailBonus    int `yaml:"verified_email_bonus" mapstructure:"verified_email_bonus" json:"verified_email_bonus" validate:"gte=0"`
	MultipleContactsBonus int `yaml:"multiple_contacts_bonus" mapstructure:"multiple_contacts_bonus" json:"multiple_contacts_bonus" validate:"gte=0"`
	MultipleContactsMin   int `yaml:"multiple_contacts_min" mapstructure:"multiple_contacts_min" json:"multiple_contacts_min" validate:"gte=1"`
	MaxScore              int `yaml:"max_score" mapstructure:"max_score" json:"max_score" validate:"gte=0,lte=100"`
}

// DataQualityConfig holds one weight per completeness flag and the cap.
type DataQualityConfig struct {
	Website     int `yaml:"website" mapstructure:"website" json:"website" validate:"gte=0"`
	Phone       int `yaml:"phone" mapstructure:"phone" json:"phone" validate:"gte=0"`
	EmailDomain int `yaml:"email_domain" mapstructure:"email_domain" json:"email_domain" validate:"gte=0"`
	Address     int `yaml:"address" mapstructure:"address" json:"address" validate:"gte=0"`
	TaxID       int `yaml:"tax_id" mapstructure:"tax_id" json:"tax_id" validate:"gte=0"`
	RecentData  int `yaml:"recent_data" mapstructure:"recent_data" json:"recent_data" validate:"gte=0"`
	RecentDays  int `yaml:"recent_days" mapstructure:"recent_days" json:"recent_days" validate:"gte=1"`
	MaxScore    int `yaml:"max_score" mapstructure:"max_score" json:"max_score" validate:"gte=0,lte=100"`
}

// ComponentWeights multiply the four component scores. They conventionally
// sum to 1 but are not required to.
type ComponentWeights struct {
	Industry    float64 `yaml:"industry_weight" mapstructure:"industry_weight" json:"industry_weight" validate:"gte=0,lte=2"`
	Size        float64 `yaml:"size_weight" mapstructure:"size_weight" json:"size_weight" validate:"gte=0,lte=2"`
	Contact     float64 `yaml:"contact_weight" mapstructure:"contact_weight" json:"contact_weight" validate:"gte=0,lte=2"`
	DataQuality float64 `yaml:"data_quality_weight" mapstructure:"data_quality_weight" json:"data_quality_weight" validate:"gte=0,lte=2"`
}

// Sum returns the total of all component weights.
func (w ComponentWeights) Sum() float64 {
	return w.Industry + w.Size + w.Contact + w.DataQuality
}

// VariantConfig is one algorithm variant under test.
type VariantConfig struct {
	Version string           `yaml:"version" mapstructure:"version" json:"version" validate:"required"`
	Weights ComponentWeights `yaml:"weights" mapstructure:"weights" json:"weights"`
}

// TrafficSplit assigns a share of entities to a variant. The order of the
// split list is the order the resolver walks.
type TrafficSplit struct {
	Variant string  `yaml:"variant" mapstructure:"variant" json:"variant" validate:"required"`
	Weight  float64 `yaml:"weight" mapstructure:"weight" json:"weight" validate:"gte=0,lte=1"`
}

// ABTestConfig configures variant selection.
type ABTestConfig struct {
	Enabled  bool                     `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	TestName string                   `yaml:"test_name" mapstructure:"test_name" json:"test_name"`
	Control  string                   `yaml:"control" mapstructure:"control" json:"control" validate:"required"`
	Traffic  []TrafficSplit           `yaml:"traffic" mapstructure:"traffic" json:"traffic" validate:"dive"`
	Variants map[string]VariantConfig `yaml:"variants" mapstructure:"variants" json:"variants" validate:"min=1,dive"`
}

// Config is the complete, immutable scoring configuration.
type Config struct {
	Industries      map[string]IndustryWeight `yaml:"industries" mapstructure:"industries" json:"industries" validate:"dive"`
	DefaultIndustry IndustryWeight            `yaml:"default_industry" mapstructure:"default_industry" json:"default_industry"`
	Size            SizeConfig                `yaml:"size" mapstructure:"size" json:"size"`
	Contacts        ContactConfig             `yaml:"contacts" mapstructure:"contacts" json:"contacts"`
	DataQuality     DataQualityConfig         `yaml:"data_quality" mapstructure:"data_quality" json:"data_quality"`
	ABTest          ABTestConfig              `yaml:"ab_test" mapstructure:"ab_test" json:"ab_test"`
}

// Configuration errors. These are fatal: NewEngine refuses to build an
// engine around a config that produces them.
var (
	ErrEmptyConfig    = eris.New("scorer: scoring config is empty")
	ErrNoVariant      = eris.New("scorer: traffic split resolves to no variant")
	ErrUnknownVariant = eris.New("scorer: unknown variant")
)

func industry(code string, weight float64, base int, risk RiskLevel, desc string) IndustryWeight {
	return IndustryWeight{Code: code, Description: desc, Weight: weight, BaseScore: base, RiskLevel: risk}
}

// DefaultConfig returns the built-in scoring tables tuned for group health
// insurance prospecting.
func DefaultConfig() Config {
	industries := []IndustryWeight{
		// Healthcare.
		industry("621", 1.8, 85, RiskLow, "Ambulatory Health Care Services"),
		industry("622", 1.7, 80, RiskLow, "Hospitals"),
		industry("623", 1.6, 75, RiskMedium, "Nursing and Residential Care Facilities"),
		// Professional services.
		industry("541", 1.4, 70, RiskLow, "Professional, Scientific, and Technical Services"),
		industry("551", 1.3, 68, RiskLow, "Management of Companies and Enterprises"),
		// Manufacturing.
		industry("31", 1.2, 65, RiskMedium, "Manufacturing"),
		industry("32", 1.2, 65, RiskMedium, "Manufacturing"),
		industry("33", 1.2, 65, RiskMedium, "Manufacturing"),
		industry("52", 1.1, 60, RiskMedium, "Finance and Insurance"),
		// Technology.
		industry("518", 1.3, 68, RiskLow, "Data Processing, Hosting, and Related Services"),
		industry("519", 1.3, 68, RiskLow, "Other Information Services"),
		// Seasonal and low-margin sectors.
		industry("23", 0.9, 45, RiskHigh, "Construction"),
		industry("44", 0.8, 40, RiskHigh, "Retail Trade"),
		industry("45", 0.8, 40, RiskHigh, "Retail Trade"),
		industry("72", 0.7, 35, RiskHigh, "Accommodation and Food Services"),
	}
	table := make(map[string]IndustryWeight, len(industries))
	for _, iw := range industries {
		table[iw.Code] = iw
	}

	return Config{
		Industries:      table,
		DefaultIndustry: industry("unknown", 1.0, 50, RiskMedium, "Unknown Industry"),
		Size: SizeConfig{
			Ranges: []SizeRange{
				{Label: "1-10", Score: 20, Category: "micro"},
				{Label: "11-50", Score: 40, Category: "small"},
				{Label: "51-100", Score: 60, Category: "small-medium"},
				{Label: "101-250", Score: 85, Bonus: 15, Category: "medium"},
				{Label: "251-500", Score: 80, Bonus: 10, Category: "medium-large"},
				{Label: "501-1000", Score: 70, Category: "large"},
				{Label: "1001-5000", Score: 50, Category: "enterprise"},
				{Label: "5000+", Score: 30, Category: "mega"},
			},
			OptimalMin:   100,
			OptimalMax:   500,
			OptimalBonus: 15,
		},
		Contacts: ContactConfig{
			DecisionMakerPoints:   10,
			ExecutiveBonus:        5,
			HRBonus:               8,
			VerifiedEmailBonus:    3,
			MultipleContactsBonus: 5,
			MultipleContactsMin:   3,
			MaxScore:              30,
		},
		DataQuality: DataQualityConfig{
			Website:     5,
			Phone:       5,
			EmailDomain: 3,
			Address:     3,
			TaxID:       2,
			RecentData:  2,
			RecentDays:  30,
			MaxScore:    20,
		},
		ABTest: ABTestConfig{
			Enabled: false,
			Control: ControlVariant,
			Traffic: []TrafficSplit{
				{Variant: ControlVariant, Weight: 0.5},
				{Variant: "variant_a", Weight: 0.5},
			},
			Variants: map[string]VariantConfig{
				ControlVariant: {
					Version: "1.0",
					Weights: ComponentWeights{Industry: 0.4, Size: 0.3, Contact: 0.2, DataQuality: 0.1},
				},
				"variant_a": {
					Version: "1.1",
					Weights: ComponentWeights{Industry: 0.35, Size: 0.25, Contact: 0.3, DataQuality: 0.1},
				},
			},
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig checks that a Config is complete and internally consistent.
// Numeric ranges are enforced through struct tags; cross-field rules are
// checked here.
func ValidateConfig(c Config) error {
	if len(c.Industries) == 0 && c.DefaultIndustry.Code == "" &&
		len(c.Size.Ranges) == 0 && len(c.ABTest.Variants) == 0 {
		return ErrEmptyConfig
	}

	var errs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}
	for key := range c.Industries {
		if len(key) < 2 || len(key) > 6 {
			errs = append(errs, fmt.Sprintf("industry key %q must be 2-6 characters", key))
		}
	}

	for _, r := range c.Size.Ranges {
		if _, _, err := parseRange(r.Label); err != nil {
			errs = append(errs, err.Error())
		}
	}

	ab := c.ABTest
	if _, ok := ab.Variants[ab.Control]; !ok {
		errs = append(errs, fmt.Sprintf("control variant %q has no config", ab.Control))
	}
	var traffic float64
	for _, ts := range ab.Traffic {
		if _, ok := ab.Variants[ts.Variant]; !ok {
			errs = append(errs, fmt.Sprintf("traffic variant %q has no config", ts.Variant))
		}
		traffic += ts.Weight
	}
	if ab.Enabled {
		if len(ab.Traffic) == 0 {
			errs = append(errs, ErrNoVariant.Error())
		} else if math.Abs(traffic-1) > 0.01 {
			errs = append(errs, fmt.Sprintf("traffic weights should sum to 1, got %.3f", traffic))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigHash returns a SHA-256 hash of the scoring config for reproducibility.
func ConfigHash(cfg Config) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}
