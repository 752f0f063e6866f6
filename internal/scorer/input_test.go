package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
)

func TestEmployeeCount_Resolution(t *testing.T) {
	assert.Equal(t, 120, EmployeeCount(model.Company{EmployeeCountExact: 120, EmployeeCountMin: 1, EmployeeCountMax: 9}))
	assert.Equal(t, 75, EmployeeCount(model.Company{EmployeeCountMin: 50, EmployeeCountMax: 100}))
	assert.Equal(t, 50, EmployeeCount(model.Company{EmployeeCountMin: 50}))
	assert.Equal(t, 30, EmployeeCount(model.Company{EmployeeRange: "20-40"}))
	assert.Equal(t, 0, EmployeeCount(model.Company{}))
}

func TestInputFromCompany(t *testing.T) {
	c := model.Company{
		ID:            "c-1",
		Name:          "Acme Dental",
		NAICSCode:     "621210",
		EmployeeRange: "101-250",
		Website:       "https://acme.example",
		EIN:           "12-3456789",
	}
	contacts := []model.Contact{
		{ID: "p1", IsDecisionMaker: true, EmailVerified: true},
		{ID: "p2", IsHRRelated: true},
	}

	in := InputFromCompany(c, contacts)
	assert.Equal(t, "c-1", in.EntityID)
	assert.Equal(t, 175, in.EmployeeCount)
	assert.Equal(t, "12-3456789", in.TaxID)
	assert.Len(t, in.Contacts, 2)
	assert.True(t, in.Contacts[0].IsDecisionMaker)
	assert.True(t, in.Contacts[1].IsHRRelated)
	assert.NoError(t, in.Validate())
}

func TestInput_Validate(t *testing.T) {
	assert.Error(t, Input{}.Validate())
	assert.Error(t, Input{EntityID: "x", EmployeeCount: -1}.Validate())
	assert.NoError(t, Input{EntityID: "x"}.Validate())
}
