package model

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadScore_QualityBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score  int
		high   bool
		medium bool
	}{
		{100, true, false},
		{80, true, false},
		{79, false, true},
		{60, false, true},
		{59, false, false},
		{0, false, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%d", tt.score), func(t *testing.T) {
			t.Parallel()
			s := LeadScore{TotalScore: tt.score}
			assert.Equal(t, tt.high, s.IsHighQuality(), "score %d", tt.score)
			assert.Equal(t, tt.medium, s.IsMediumQuality(), "score %d", tt.score)
		})
	}
}

func TestCompanyWithContacts_JSON(t *testing.T) {
	t.Parallel()

	raw := `{"company":{"id":"c-1","name":"Acme","employee_range":"51-200"},
		"contacts":[{"id":"ct-1","company_id":"c-1","is_decision_maker":true,"is_executive":false,"is_hr_related":false,"email_verified":true}]}`

	var cw CompanyWithContacts
	require.NoError(t, json.Unmarshal([]byte(raw), &cw))
	assert.Equal(t, "Acme", cw.Company.Name)
	assert.Equal(t, "51-200", cw.Company.EmployeeRange)
	assert.Nil(t, cw.Company.LeadScore)
	assert.Nil(t, cw.LastScoredAt)
	require.Len(t, cw.Contacts, 1)
	assert.True(t, cw.Contacts[0].IsDecisionMaker)
	assert.True(t, cw.Contacts[0].EmailVerified)
}

func TestLeadScore_FactorsStayRaw(t *testing.T) {
	t.Parallel()

	s := LeadScore{
		ID:        "s-1",
		Factors:   json.RawMessage(`{"size":{"size_category":"medium"}}`),
		Reasons:   []string{"Optimal company size: 150 employees"},
		CreatedAt: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"factors":{"size":{"size_category":"medium"}}`)
	assert.Contains(t, string(out), `"created_at":"2024-03-15T00:00:00Z"`)
}
