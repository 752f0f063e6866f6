package experiment

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/scorer"
)

// Status is the lifecycle state of an A/B test.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusDraft:   {StatusRunning, StatusCancelled},
	StatusRunning: {StatusPaused, StatusCompleted, StatusCancelled},
	StatusPaused:  {StatusRunning, StatusCompleted, StatusCancelled},
}

// Definition describes a test to create.
type Definition struct {
	Name          string                          `yaml:"name" validate:"required"`
	Description   string                          `yaml:"description"`
	Control       string                          `yaml:"control"`
	Variants      map[string]scorer.VariantConfig `yaml:"variants" validate:"min=2,dive"`
	Traffic       []scorer.TrafficSplit           `yaml:"traffic" validate:"min=1,dive"`
	StartDate     time.Time                       `yaml:"start_date"`
	EndDate       *time.Time                      `yaml:"end_date"`
	SuccessMetric string                          `yaml:"success_metric"`
}

// Test is a created A/B test.
type Test struct {
	Name          string                          `json:"test_name" yaml:"test_name"`
	Description   string                          `json:"description" yaml:"description"`
	Status        Status                          `json:"status" yaml:"status"`
	Control       string                          `json:"control" yaml:"control"`
	Variants      map[string]scorer.VariantConfig `json:"variant_configs" yaml:"variant_configs"`
	Traffic       []scorer.TrafficSplit           `json:"traffic_split" yaml:"traffic_split"`
	StartDate     time.Time                       `json:"start_date" yaml:"start_date"`
	EndDate       *time.Time                      `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	SuccessMetric string                          `json:"success_metric" yaml:"success_metric"`
	CreatedAt     time.Time                       `json:"created_at" yaml:"created_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewTest validates def and returns a draft test. The traffic split must sum
// to 1 within 0.01 and name only configured variants.
func NewTest(def Definition, now time.Time) (*Test, error) {
	if err := validate.Struct(def); err != nil {
		return nil, eris.Wrap(err, "experiment: invalid test definition")
	}

	var sum float64
	for _, ts := range def.Traffic {
		if _, ok := def.Variants[ts.Variant]; !ok {
			return nil, eris.Errorf("experiment: traffic split names unknown variant %q", ts.Variant)
		}
		sum += ts.Weight
	}
	if math.Abs(sum-1) > 0.01 {
		return nil, eris.Errorf("experiment: traffic split must sum to 1.0, got %.3f", sum)
	}

	control := def.Control
	if control == "" {
		control = scorer.ControlVariant
	}
	if _, ok := def.Variants[control]; !ok {
		return nil, eris.Errorf("experiment: control variant %q has no config", control)
	}

	start := def.StartDate
	if start.IsZero() {
		start = now
	}
	if def.EndDate != nil && !def.EndDate.After(start) {
		return nil, eris.New("experiment: end date must be after start date")
	}
	metric := def.SuccessMetric
	if metric == "" {
		metric = "conversion_rate"
	}

	t := &Test{
		Name:          def.Name,
		Description:   def.Description,
		Status:        StatusDraft,
		Control:       control,
		Variants:      def.Variants,
		Traffic:       def.Traffic,
		StartDate:     start.UTC(),
		EndDate:       def.EndDate,
		SuccessMetric: metric,
		CreatedAt:     now.UTC(),
	}
	zap.L().Info("experiment: created test", zap.String("test", t.Name), zap.Int("variants", len(t.Variants)))
	return t, nil
}

// Transition moves the test to status to, if the lifecycle allows it.
func (t *Test) Transition(to Status) error {
	for _, allowed := range transitions[t.Status] {
		if allowed == to {
			t.Status = to
			return nil
		}
	}
	return eris.Errorf("experiment: cannot move test %q from %s to %s", t.Name, t.Status, to)
}

// ABTestConfig returns the scoring configuration that runs this test. It is
// enabled only while the test is running.
func (t *Test) ABTestConfig() scorer.ABTestConfig {
	return scorer.ABTestConfig{
		Enabled:  t.Status == StatusRunning,
		TestName: t.Name,
		Control:  t.Control,
		Traffic:  t.Traffic,
		Variants: t.Variants,
	}
}

// ConfigYAML renders the test as a "scoring.ab_test" config fragment.
func (t *Test) ConfigYAML() ([]byte, error) {
	doc := map[string]any{
		"scoring": map[string]any{"ab_test": t.ABTestConfig()},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "experiment: marshal test config")
	}
	return out, nil
}
