package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse postgres config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	naics_code           TEXT NOT NULL DEFAULT '',
	naics_description    TEXT NOT NULL DEFAULT '',
	employee_count_exact INTEGER NOT NULL DEFAULT 0,
	employee_count_min   INTEGER NOT NULL DEFAULT 0,
	employee_count_max   INTEGER NOT NULL DEFAULT 0,
	employee_range       TEXT NOT NULL DEFAULT '',
	website              TEXT NOT NULL DEFAULT '',
	phone                TEXT NOT NULL DEFAULT '',
	email_domain         TEXT NOT NULL DEFAULT '',
	street_address       TEXT NOT NULL DEFAULT '',
	city                 TEXT NOT NULL DEFAULT '',
	state                TEXT NOT NULL DEFAULT '',
	zip_code             TEXT NOT NULL DEFAULT '',
	ein                  TEXT NOT NULL DEFAULT '',
	lead_score           INTEGER,
	crm_id               TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMPTZ,
	last_scored_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS contacts (
	id                TEXT PRIMARY KEY,
	company_id        TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	full_name         TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	is_decision_maker BOOLEAN NOT NULL DEFAULT false,
	is_executive      BOOLEAN NOT NULL DEFAULT false,
	is_hr_related     BOOLEAN NOT NULL DEFAULT false,
	email_verified    BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS lead_scores (
	id                  TEXT PRIMARY KEY,
	company_id          TEXT NOT NULL,
	total_score         INTEGER NOT NULL,
	grade               TEXT NOT NULL,
	industry_score      DOUBLE PRECISION NOT NULL,
	size_score          DOUBLE PRECISION NOT NULL,
	contact_score       DOUBLE PRECISION NOT NULL,
	data_quality_score  DOUBLE PRECISION NOT NULL,
	factors             JSONB NOT NULL DEFAULT '{}',
	reasons             JSONB NOT NULL DEFAULT '[]',
	recommendation      TEXT NOT NULL DEFAULT '',
	industry_risk_level TEXT NOT NULL DEFAULT '',
	industry_weight     DOUBLE PRECISION NOT NULL DEFAULT 0,
	employee_count      INTEGER NOT NULL DEFAULT 0,
	size_category       TEXT NOT NULL DEFAULT '',
	variant             TEXT NOT NULL,
	scoring_version     TEXT NOT NULL DEFAULT '',
	config_hash         TEXT NOT NULL DEFAULT '',
	created_by          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
CREATE INDEX IF NOT EXISTS idx_companies_last_scored_at ON companies(last_scored_at);
CREATE INDEX IF NOT EXISTS idx_lead_scores_company_created ON lead_scores(company_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_lead_scores_variant_created ON lead_scores(variant, created_at);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "store: migrate postgres")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgUpsertCompany = `INSERT INTO companies (id, name, naics_code, naics_description,
	employee_count_exact, employee_count_min, employee_count_max, employee_range, website,
	phone, email_domain, street_address, city, state, zip_code, ein, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	naics_code = EXCLUDED.naics_code,
	naics_description = EXCLUDED.naics_description,
	employee_count_exact = EXCLUDED.employee_count_exact,
	employee_count_min = EXCLUDED.employee_count_min,
	employee_count_max = EXCLUDED.employee_count_max,
	employee_range = EXCLUDED.employee_range,
	website = EXCLUDED.website,
	phone = EXCLUDED.phone,
	email_domain = EXCLUDED.email_domain,
	street_address = EXCLUDED.street_address,
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	zip_code = EXCLUDED.zip_code,
	ein = EXCLUDED.ein,
	updated_at = EXCLUDED.updated_at`

const pgInsertContact = `INSERT INTO contacts (` + contactColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// UpsertCompany inserts or updates a company and replaces its contacts in
// one transaction. A company without an ID is assigned one.
func (s *PostgresStore) UpsertCompany(ctx context.Context, c model.Company, contacts []model.Contact) (string, error) {
	if err := validateCompany(c); err != nil {
		return "", err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	updatedAt := c.UpdatedAt
	if updatedAt == nil {
		now := time.Now().UTC()
		updatedAt = &now
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "store: begin upsert company")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, pgUpsertCompany,
		c.ID, c.Name, c.NAICSCode, c.NAICSDescription,
		c.EmployeeCountExact, c.EmployeeCountMin, c.EmployeeCountMax, c.EmployeeRange,
		c.Website, c.Phone, c.EmailDomain, c.StreetAddress, c.City, c.State, c.ZipCode, c.EIN,
		*updatedAt,
	); err != nil {
		return "", eris.Wrapf(err, "store: upsert company %s", c.ID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM contacts WHERE company_id = $1`, c.ID); err != nil {
		return "", eris.Wrapf(err, "store: clear contacts for %s", c.ID)
	}
	for _, ct := range contacts {
		if ct.ID == "" {
			ct.ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, pgInsertContact,
			ct.ID, c.ID, ct.FullName, ct.Title, ct.Email,
			ct.IsDecisionMaker, ct.IsExecutive, ct.IsHRRelated, ct.EmailVerified,
		); err != nil {
			return "", eris.Wrapf(err, "store: insert contact for %s", c.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "store: commit upsert company")
	}
	return c.ID, nil
}

// GetCompany returns a company with its contacts.
func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.CompanyWithContacts, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	cw, err := scanPgCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "store: company %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get company %s", id)
	}

	contacts, err := s.contactsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	list := []model.CompanyWithContacts{*cw}
	groupContacts(list, contacts)
	return &list[0], nil
}

// CompaniesToScore returns companies never scored or last scored before
// olderThan, never-scored first. A limit <= 0 means no limit.
func (s *PostgresStore) CompaniesToScore(ctx context.Context, olderThan time.Time, limit int) ([]model.CompanyWithContacts, error) {
	query := `SELECT ` + companyColumns + ` FROM companies
WHERE last_scored_at IS NULL OR last_scored_at < $1
ORDER BY last_scored_at ASC NULLS FIRST, id`
	args := []any{olderThan.UTC()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: select companies to score")
	}
	defer rows.Close()

	var (
		out []model.CompanyWithContacts
		ids []string
	)
	for rows.Next() {
		cw, err := scanPgCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan company")
		}
		out = append(out, *cw)
		ids = append(ids, cw.Company.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate companies")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	contacts, err := s.contactsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	groupContacts(out, contacts)
	return out, nil
}

func (s *PostgresStore) contactsFor(ctx context.Context, companyIDs []string) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE company_id = ANY($1) ORDER BY company_id, id`,
		companyIDs)
	if err != nil {
		return nil, eris.Wrap(err, "store: select contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var ct model.Contact
		if err := rows.Scan(&ct.ID, &ct.CompanyID, &ct.FullName, &ct.Title, &ct.Email,
			&ct.IsDecisionMaker, &ct.IsExecutive, &ct.IsHRRelated, &ct.EmailVerified); err != nil {
			return nil, eris.Wrap(err, "store: scan contact")
		}
		out = append(out, ct)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate contacts")
}

// SetCRMID records the CRM identifier assigned to a company.
func (s *PostgresStore) SetCRMID(ctx context.Context, companyID, crmID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE companies SET crm_id = $1 WHERE id = $2`, crmID, companyID)
	if err != nil {
		return eris.Wrapf(err, "store: set crm id for %s", companyID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "store: company %s", companyID)
	}
	return nil
}

const pgInsertScore = `INSERT INTO lead_scores (` + scoreColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
ON CONFLICT (id) DO NOTHING`

const pgUpdateAggregate = `UPDATE companies SET lead_score = $1, last_scored_at = $2
WHERE id = $3 AND (last_scored_at IS NULL OR last_scored_at <= $2)`

// SaveScore appends a score to the history and updates the company's
// aggregate lead score in one transaction. Saving an ID that already exists
// is a no-op, so a retried unit of work does not duplicate history.
func (s *PostgresStore) SaveScore(ctx context.Context, score model.LeadScore) error {
	if score.ID == "" {
		return eris.New("store: lead score has no id")
	}
	factors, reasons, err := encodeScoreJSON(score)
	if err != nil {
		return err
	}
	createdAt := score.CreatedAt.UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin save score")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, pgInsertScore,
		score.ID, score.CompanyID, score.TotalScore, score.Grade,
		score.IndustryScore, score.SizeScore, score.ContactScore, score.DataQualityScore,
		factors, reasons, score.Recommendation, score.IndustryRiskLevel, score.IndustryWeight,
		score.EmployeeCount, score.SizeCategory, score.Variant, score.ScoringVersion,
		score.ConfigHash, score.CreatedBy, createdAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: insert score %s", score.ID)
	}
	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx, pgUpdateAggregate, score.TotalScore, createdAt, score.CompanyID); err != nil {
			return eris.Wrapf(err, "store: update aggregate for %s", score.CompanyID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "store: commit save score")
}

// LatestScore returns the most recent score for a company.
func (s *PostgresStore) LatestScore(ctx context.Context, companyID string) (*model.LeadScore, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scoreColumns+` FROM lead_scores WHERE company_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		companyID)
	ls, err := scanPgScore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "store: no score for %s", companyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: latest score for %s", companyID)
	}
	return ls, nil
}

// ListScores returns scores matching filter, oldest first.
func (s *PostgresStore) ListScores(ctx context.Context, filter ScoreFilter) ([]model.LeadScore, error) {
	query, args := scoreQuery(filter,
		func(n int) string { return fmt.Sprintf("$%d", n) },
		func(t time.Time) any { return t.UTC() })

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list scores")
	}
	defer rows.Close()

	var out []model.LeadScore
	for rows.Next() {
		ls, err := scanPgScore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan score")
		}
		out = append(out, *ls)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate scores")
}

func scanPgCompany(row pgx.Row) (*model.CompanyWithContacts, error) {
	var cw model.CompanyWithContacts
	c := &cw.Company
	err := row.Scan(&c.ID, &c.Name, &c.NAICSCode, &c.NAICSDescription,
		&c.EmployeeCountExact, &c.EmployeeCountMin, &c.EmployeeCountMax, &c.EmployeeRange,
		&c.Website, &c.Phone, &c.EmailDomain, &c.StreetAddress, &c.City, &c.State, &c.ZipCode,
		&c.EIN, &c.LeadScore, &c.CRMID, &c.UpdatedAt, &cw.LastScoredAt)
	if err != nil {
		return nil, err
	}
	return &cw, nil
}

func scanPgScore(row pgx.Row) (*model.LeadScore, error) {
	var (
		ls      model.LeadScore
		factors []byte
		reasons []byte
	)
	err := row.Scan(&ls.ID, &ls.CompanyID, &ls.TotalScore, &ls.Grade,
		&ls.IndustryScore, &ls.SizeScore, &ls.ContactScore, &ls.DataQualityScore,
		&factors, &reasons, &ls.Recommendation, &ls.IndustryRiskLevel, &ls.IndustryWeight,
		&ls.EmployeeCount, &ls.SizeCategory, &ls.Variant, &ls.ScoringVersion,
		&ls.ConfigHash, &ls.CreatedBy, &ls.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeScoreJSON(&ls, factors, reasons); err != nil {
		return nil, err
	}
	return &ls, nil
}

func encodeScoreJSON(score model.LeadScore) ([]byte, []byte, error) {
	factors := []byte(score.Factors)
	if len(factors) == 0 {
		factors = []byte("{}")
	}
	reasons := score.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal reasons")
	}
	return factors, reasonsJSON, nil
}

func decodeScoreJSON(ls *model.LeadScore, factors, reasons []byte) error {
	if len(factors) > 0 {
		ls.Factors = json.RawMessage(factors)
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &ls.Reasons); err != nil {
			return eris.Wrap(err, "store: unmarshal reasons")
		}
	}
	return nil
}
