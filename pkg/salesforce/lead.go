package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Custom Lead fields carrying scoring output.
const (
	FieldExternalID     = "External_Id__c"
	FieldLeadScore      = "Lead_Score__c"
	FieldLeadGrade      = "Lead_Grade__c"
	FieldScoringVariant = "Scoring_Variant__c"
	FieldRecommendation = "Score_Recommendation__c"
)

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID                string `json:"Id" salesforce:"Id"`
	Company           string `json:"Company" salesforce:"Company"`
	LastName          string `json:"LastName" salesforce:"LastName"`
	Status            string `json:"Status" salesforce:"Status"`
	LeadSource        string `json:"LeadSource" salesforce:"LeadSource"`
	Website           string `json:"Website" salesforce:"Website"`
	Phone             string `json:"Phone" salesforce:"Phone"`
	City              string `json:"City" salesforce:"City"`
	State             string `json:"State" salesforce:"State"`
	NumberOfEmployees int    `json:"NumberOfEmployees" salesforce:"NumberOfEmployees"`
	ExternalID        string `json:"External_Id__c" salesforce:"External_Id__c"`
	LeadScore         int    `json:"Lead_Score__c" salesforce:"Lead_Score__c"`
	LeadGrade         string `json:"Lead_Grade__c" salesforce:"Lead_Grade__c"`
}

// leadFields are the SOQL fields selected for Lead queries.
var leadFields = []string{
	"Id", "Company", "LastName", "Status", "LeadSource", "Website", "Phone",
	"City", "State", "NumberOfEmployees", FieldExternalID, FieldLeadScore, FieldLeadGrade,
}

// CreateLead creates a new Lead record and returns the new Salesforce ID.
func CreateLead(ctx context.Context, c Client, fields map[string]any) (string, error) {
	for _, required := range []string{"Company", "LastName"} {
		if v, _ := fields[required].(string); v == "" {
			return "", eris.New(fmt.Sprintf("sf: lead %s is required", required))
		}
	}
	id, err := c.InsertOne(ctx, "Lead", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create lead")
	}
	return id, nil
}

// UpdateLead updates a Lead record with the given fields.
func UpdateLead(ctx context.Context, c Client, leadID string, fields map[string]any) error {
	if leadID == "" {
		return eris.New("sf: lead id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Lead", leadID, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update lead %s", leadID))
	}
	return nil
}

// FindLeadByExternalID returns the Lead carrying the given external ID, or
// nil if there is none.
func FindLeadByExternalID(ctx context.Context, c Client, externalID string) (*Lead, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Lead WHERE %s = '%s' LIMIT 1",
		strings.Join(leadFields, ", "),
		FieldExternalID,
		escapeSoql(externalID),
	)

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead %s", externalID))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
