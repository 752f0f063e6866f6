package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
)

// sqliteTimeLayout is fixed width so text comparison orders timestamps.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	updated_at           TEXT,
	last_scored_at       TEXT
);

CREATE TABLE IF NOT EXISTS contacts (
	id                TEXT PRIMARY KEY,
	company_id        TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	full_name         TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	is_decision_maker INTEGER NOT NULL DEFAULT 0,
	is_executive      INTEGER NOT NULL DEFAULT 0,
	is_hr_related     INTEGER NOT NULL DEFAULT 0,
	email_verified    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lead_scores (
	id                  TEXT PRIMARY KEY,
	company_id          TEXT NOT NULL,
	total_score         INTEGER NOT NULL,
	grade               TEXT NOT NULL,
	industry_score      REAL NOT NULL,
	size_score          REAL NOT NULL,
	contact_score       REAL NOT NULL,
	data_quality_score  REAL NOT NULL,
	factors             TEXT NOT NULL DEFAULT '{}',
	reasons             TEXT NOT NULL DEFAULT '[]',
	recommendation      TEXT NOT NULL DEFAULT '',
	industry_risk_level TEXT NOT NULL DEFAULT '',
	industry_weight     REAL NOT NULL DEFAULT 0,
	employee_count      INTEGER NOT NULL DEFAULT 0,
	size_category       TEXT NOT NULL DEFAULT '',
	variant             TEXT NOT NULL,
	scoring_version     TEXT NOT NULL DEFAULT '',
	config_hash         TEXT NOT NULL DEFAULT '',
	created_by          TEXT NOT NULL DEFAULT '',
	created_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
CREATE INDEX IF NOT EXISTS idx_companies_last_scored_at ON companies(last_scored_at);
CREATE INDEX IF NOT EXISTS idx_lead_scores_company_created ON lead_scores(company_id, created_at);
CREATE INDEX IF NOT EXISTS idx_lead_scores_variant_created ON lead_scores(variant, created_at);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "store: migrate sqlite")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertCompany = `INSERT INTO companies (id, name, naics_code, naics_description,
	employee_count_exact, employee_count_min, employee_count_max, employee_range, website,
	phone, email_domain, street_address, city, state, zip_code, ein, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	naics_code = excluded.naics_code,
	naics_description = excluded.naics_description,
	employee_count_exact = excluded.employee_count_exact,
	employee_count_min = excluded.employee_count_min,
	employee_count_max = excluded.employee_count_max,
	employee_range = excluded.employee_range,
	website = excluded.website,
	phone = excluded.phone,
	email_domain = excluded.email_domain,
	street_address = excluded.street_address,
	city = excluded.city,
	state = excluded.state,
	zip_code = excluded.zip_code,
	ein = excluded.ein,
	updated_at = excluded.updated_at`

// UpsertCompany inserts or updates a company and replaces its contacts in
// one transaction. A company without an ID is assigned one.
func (s *SQLiteStore) UpsertCompany(ctx context.Context, c model.Company, contacts []model.Contact) (string, error) {
	if err := validateCompany(c); err != nil {
		return "", err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	updatedAt := time.Now().UTC()
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "store: begin upsert company")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, sqliteUpsertCompany,
		c.ID, c.Name, c.NAICSCode, c.NAICSDescription,
		c.EmployeeCountExact, c.EmployeeCountMin, c.EmployeeCountMax, c.EmployeeRange,
		c.Website, c.Phone, c.EmailDomain, c.StreetAddress, c.City, c.State, c.ZipCode, c.EIN,
		formatTime(updatedAt),
	); err != nil {
		return "", eris.Wrapf(err, "store: upsert company %s", c.ID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE company_id = ?`, c.ID); err != nil {
		return "", eris.Wrapf(err, "store: clear contacts for %s", c.ID)
	}
	for _, ct := range contacts {
		if ct.ID == "" {
			ct.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contacts (`+contactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ct.ID, c.ID, ct.FullName, ct.Title, ct.Email,
			ct.IsDecisionMaker, ct.IsExecutive, ct.IsHRRelated, ct.EmailVerified,
		); err != nil {
			return "", eris.Wrapf(err, "store: insert contact for %s", c.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "store: commit upsert company")
	}
	return c.ID, nil
}

// GetCompany returns a company with its contacts.
func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.CompanyWithContacts, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	cw, err := scanSQLiteCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) CompaniesToScore(ctx context.Context, olderThan time.Time, limit int) ([]model.CompanyWithContacts, error) {
	query := `SELECT ` + companyColumns + ` FROM companies
WHERE last_scored_at IS NULL OR last_scored_at < ?
ORDER BY last_scored_at IS NOT NULL, last_scored_at, id`
	args := []any{formatTime(olderThan)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: select companies to score")
	}
	defer rows.Close()

	var (
		out []model.CompanyWithContacts
		ids []string
	)
	for rows.Next() {
		cw, err := scanSQLiteCompany(rows)
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

func (s *SQLiteStore) contactsFor(ctx context.Context, companyIDs []string) ([]model.Contact, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(companyIDs)), ", ")
	args := make([]any, len(companyIDs))
	for i, id := range companyIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE company_id IN (`+placeholders+`) ORDER BY company_id, id`,
		args...)
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
func (s *SQLiteStore) SetCRMID(ctx context.Context, companyID, crmID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE companies SET crm_id = ? WHERE id = ?`, crmID, companyID)
	if err != nil {
		return eris.Wrapf(err, "store: set crm id for %s", companyID)
	}
	return checkRowsAffected(res, companyID)
}

// SaveScore appends a score to the history and updates the company's
// aggregate lead score in one transaction. Saving an ID that already exists
// is a no-op.
func (s *SQLiteStore) SaveScore(ctx context.Context, score model.LeadScore) error {
	if score.ID == "" {
		return eris.New("store: lead score has no id")
	}
	factors, reasons, err := encodeScoreJSON(score)
	if err != nil {
		return err
	}
	createdAt := formatTime(score.CreatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin save score")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO lead_scores (`+scoreColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		score.ID, score.CompanyID, score.TotalScore, score.Grade,
		score.IndustryScore, score.SizeScore, score.ContactScore, score.DataQualityScore,
		string(factors), string(reasons), score.Recommendation, score.IndustryRiskLevel,
		score.IndustryWeight, score.EmployeeCount, score.SizeCategory, score.Variant,
		score.ScoringVersion, score.ConfigHash, score.CreatedBy, createdAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: insert score %s", score.ID)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if inserted > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE companies SET lead_score = ?, last_scored_at = ?
WHERE id = ? AND (last_scored_at IS NULL OR last_scored_at <= ?)`,
			score.TotalScore, createdAt, score.CompanyID, createdAt,
		); err != nil {
			return eris.Wrapf(err, "store: update aggregate for %s", score.CompanyID)
		}
	}

	return eris.Wrap(tx.Commit(), "store: commit save score")
}

// LatestScore returns the most recent score for a company.
func (s *SQLiteStore) LatestScore(ctx context.Context, companyID string) (*model.LeadScore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scoreColumns+` FROM lead_scores WHERE company_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		companyID)
	ls, err := scanSQLiteScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "store: no score for %s", companyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: latest score for %s", companyID)
	}
	return ls, nil
}

// ListScores returns scores matching filter, oldest first.
func (s *SQLiteStore) ListScores(ctx context.Context, filter ScoreFilter) ([]model.LeadScore, error) {
	query, args := scoreQuery(filter,
		func(int) string { return "?" },
		func(t time.Time) any { return formatTime(t) })

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list scores")
	}
	defer rows.Close()

	var out []model.LeadScore
	for rows.Next() {
		ls, err := scanSQLiteScore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan score")
		}
		out = append(out, *ls)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate scores")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "store: company %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteCompany(row scannable) (*model.CompanyWithContacts, error) {
	var (
		cw         model.CompanyWithContacts
		leadScore  sql.NullInt64
		updatedAt  sql.NullString
		lastScored sql.NullString
	)
	c := &cw.Company
	err := row.Scan(&c.ID, &c.Name, &c.NAICSCode, &c.NAICSDescription,
		&c.EmployeeCountExact, &c.EmployeeCountMin, &c.EmployeeCountMax, &c.EmployeeRange,
		&c.Website, &c.Phone, &c.EmailDomain, &c.StreetAddress, &c.City, &c.State, &c.ZipCode,
		&c.EIN, &leadScore, &c.CRMID, &updatedAt, &lastScored)
	if err != nil {
		return nil, err
	}
	if leadScore.Valid {
		v := int(leadScore.Int64)
		c.LeadScore = &v
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if cw.LastScoredAt, err = parseTime(lastScored); err != nil {
		return nil, err
	}
	return &cw, nil
}

func scanSQLiteScore(row scannable) (*model.LeadScore, error) {
	var (
		ls               model.LeadScore
		factors, reasons string
		createdAt        string
	)
	err := row.Scan(&ls.ID, &ls.CompanyID, &ls.TotalScore, &ls.Grade,
		&ls.IndustryScore, &ls.SizeScore, &ls.ContactScore, &ls.DataQualityScore,
		&factors, &reasons, &ls.Recommendation, &ls.IndustryRiskLevel, &ls.IndustryWeight,
		&ls.EmployeeCount, &ls.SizeCategory, &ls.Variant, &ls.ScoringVersion,
		&ls.ConfigHash, &ls.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse created_at")
	}
	ls.CreatedAt = t
	if err := decodeScoreJSON(&ls, []byte(factors), []byte(reasons)); err != nil {
		return nil, err
	}
	return &ls, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(sqliteTimeLayout, s.String)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse timestamp")
	}
	return &t, nil
}
