// Package crmsync pushes qualifying leads into Salesforce.
package crmsync

import (
	"context"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/queue"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/resilience"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/store"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/pkg/salesforce"
)

const (
	defaultLeadSource = "Lead Scoring Engine"
	defaultLeadStatus = "Open - Not Contacted"
)

// Store is the persistence CRM sync reads from and writes back to.
type Store interface {
	GetCompany(ctx context.Context, id string) (*model.CompanyWithContacts, error)
	LatestScore(ctx context.Context, companyID string) (*model.LeadScore, error)
	SetCRMID(ctx context.Context, companyID, crmID string) error
}

// Handler consumes CRM sync tasks.
type Handler struct {
	store      Store
	sf         salesforce.Client
	breaker    *resilience.Breaker
	leadSource string
}

// NewHandler creates a Handler. A nil breaker gets the default settings.
func NewHandler(st Store, sf salesforce.Client, breaker *resilience.Breaker, leadSource string) *Handler {
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{Name: "salesforce"})
	}
	if leadSource == "" {
		leadSource = defaultLeadSource
	}
	return &Handler{store: st, sf: sf, breaker: breaker, leadSource: leadSource}
}

// ProcessTask implements asynq.Handler. Malformed payloads and unknown
// companies are not retried.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseCRMSyncPayload(task)
	if err != nil {
		return eris.Wrapf(asynq.SkipRetry, "crmsync: %v", err)
	}

	_, err = h.Sync(ctx, payload.CompanyID)
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("crmsync: dropping task",
			zap.String("company_id", payload.CompanyID),
			zap.Error(err))
		return eris.Wrapf(asynq.SkipRetry, "crmsync: %v", err)
	}
	return err
}

// Sync upserts the company's Salesforce Lead with its latest score and
// returns the Lead ID. An existing Lead is found by the stored CRM ID or by
// external ID; otherwise a new one is created and its ID recorded.
func (h *Handler) Sync(ctx context.Context, companyID string) (string, error) {
	cw, err := h.store.GetCompany(ctx, companyID)
	if err != nil {
		return "", eris.Wrap(err, "crmsync: load company")
	}
	score, err := h.store.LatestScore(ctx, companyID)
	if err != nil {
		return "", eris.Wrap(err, "crmsync: load score")
	}

	var (
		leadID  string
		created bool
	)
	err = h.breaker.Execute(ctx, func(ctx context.Context) error {
		leadID = cw.Company.CRMID
		if leadID == "" {
			existing, err := salesforce.FindLeadByExternalID(ctx, h.sf, companyID)
			if err != nil {
				return err
			}
			if existing != nil {
				leadID = existing.ID
			}
		}
		if leadID != "" {
			return salesforce.UpdateLead(ctx, h.sf, leadID, ScoreFields(*score))
		}

		id, err := salesforce.CreateLead(ctx, h.sf, LeadFields(*cw, *score, h.leadSource))
		if err != nil {
			return err
		}
		leadID, created = id, true
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "crmsync: sync company %s", companyID)
	}

	if leadID != cw.Company.CRMID {
		if err := h.store.SetCRMID(ctx, companyID, leadID); err != nil {
			return leadID, eris.Wrap(err, "crmsync: record crm id")
		}
	}

	zap.L().Info("crmsync: lead synced",
		zap.String("company_id", companyID),
		zap.String("lead_id", leadID),
		zap.Bool("created", created),
		zap.Int("total_score", score.TotalScore),
		zap.String("variant", score.Variant))
	return leadID, nil
}

// ScoreFields are the Lead fields refreshed on every sync.
func ScoreFields(score model.LeadScore) map[string]any {
	return map[string]any{
		salesforce.FieldLeadScore:      score.TotalScore,
		salesforce.FieldLeadGrade:      score.Grade,
		salesforce.FieldScoringVariant: score.Variant,
		salesforce.FieldRecommendation: score.Recommendation,
		"Rating":                       rating(score),
	}
}

// LeadFields builds a new Lead from a company and its latest score.
func LeadFields(cw model.CompanyWithContacts, score model.LeadScore, leadSource string) map[string]any {
	c := cw.Company
	fields := ScoreFields(score)
	fields["Company"] = c.Name
	fields["LastName"] = contactLastName(cw.Contacts)
	fields["Status"] = defaultLeadStatus
	fields["LeadSource"] = leadSource
	fields[salesforce.FieldExternalID] = c.ID

	optional := map[string]string{
		"Website":    c.Website,
		"Phone":      c.Phone,
		"Street":     c.StreetAddress,
		"City":       c.City,
		"State":      c.State,
		"PostalCode": c.ZipCode,
		"Industry":   c.NAICSDescription,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	if score.EmployeeCount > 0 {
		fields["NumberOfEmployees"] = score.EmployeeCount
	}
	return fields
}

// contactLastName picks the decision maker's surname, falling back to any
// named contact. Salesforce requires LastName on a Lead.
func contactLastName(contacts []model.Contact) string {
	var fallback string
	for _, ct := range contacts {
		parts := strings.Fields(ct.FullName)
		if len(parts) == 0 {
			continue
		}
		last := parts[len(parts)-1]
		if ct.IsDecisionMaker {
			return last
		}
		if fallback == "" {
			fallback = last
		}
	}
	if fallback == "" {
		return "Unknown"
	}
	return fallback
}

func rating(score model.LeadScore) string {
	switch {
	case score.IsHighQuality():
		return "Hot"
	case score.IsMediumQuality():
		return "Warm"
	default:
		return "Cold"
	}
}
