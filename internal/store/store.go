package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/config"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
)

// ErrNotFound is returned when a requested company or score does not exist.
var ErrNotFound = eris.New("store: not found")

// ScoreFilter specifies criteria for listing lead scores. Zero values match
// everything.
type ScoreFilter struct {
	CompanyID string    `json:"company_id,omitempty"`
	Variant   string    `json:"variant,omitempty"`
	Since     time.Time `json:"since,omitempty"`
	Until     time.Time `json:"until,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// Store defines the persistence interface for companies and their score
// history.
type Store interface {
	// Companies
	UpsertCompany(ctx context.Context, c model.Company, contacts []model.Contact) (string, error)
	GetCompany(ctx context.Context, id string) (*model.CompanyWithContacts, error)
	CompaniesToScore(ctx context.Context, olderThan time.Time, limit int) ([]model.CompanyWithContacts, error)
	SetCRMID(ctx context.Context, companyID, crmID string) error

	// Scores
	SaveScore(ctx context.Context, score model.LeadScore) error
	LatestScore(ctx context.Context, companyID string) (*model.LeadScore, error)
	ListScores(ctx context.Context, filter ScoreFilter) ([]model.LeadScore, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "leadscore.db"
		}
		s, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires a database url")
		}
		s, err := NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}

const scoreColumns = `id, company_id, total_score, grade, industry_score, size_score, contact_score,
	data_quality_score, factors, reasons, recommendation, industry_risk_level, industry_weight,
	employee_count, size_category, variant, scoring_version, config_hash, created_by, created_at`

const companyColumns = `id, name, naics_code, naics_description, employee_count_exact,
	employee_count_min, employee_count_max, employee_range, website, phone, email_domain,
	street_address, city, state, zip_code, ein, lead_score, crm_id, updated_at, last_scored_at`

const contactColumns = `id, company_id, full_name, title, email, is_decision_maker,
	is_executive, is_hr_related, email_verified`

// scoreQuery builds the ListScores statement. placeholder renders the n-th
// bind parameter and ts converts a time bound into the driver's format.
func scoreQuery(f ScoreFilter, placeholder func(n int) string, ts func(time.Time) any) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, placeholder(len(args))))
	}
	if f.CompanyID != "" {
		add("company_id = %s", f.CompanyID)
	}
	if f.Variant != "" {
		add("variant = %s", f.Variant)
	}
	if !f.Since.IsZero() {
		add("created_at >= %s", ts(f.Since))
	}
	if !f.Until.IsZero() {
		add("created_at < %s", ts(f.Until))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(scoreColumns)
	b.WriteString(" FROM lead_scores")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at, id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		b.WriteString(" LIMIT " + placeholder(len(args)))
	}
	return b.String(), args
}

func validateCompany(c model.Company) error {
	if strings.TrimSpace(c.Name) == "" {
		return eris.New("store: company name is required")
	}
	return nil
}

// groupContacts attaches contacts to their companies, preserving company order.
func groupContacts(companies []model.CompanyWithContacts, contacts []model.Contact) {
	idx := make(map[string]int, len(companies))
	for i, c := range companies {
		idx[c.Company.ID] = i
	}
	for _, ct := range contacts {
		if i, ok := idx[ct.CompanyID]; ok {
			companies[i].Contacts = append(companies[i].Contacts, ct)
		}
	}
}
