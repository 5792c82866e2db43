// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/fnol"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSubmission stores a raw submission with tenant isolation.
// The policy number is denormalized out of the raw record for frequency
// queries, resolved through the extraction synonym table so a record keyed
// "PolicyNo" counts against the same policy as one keyed "policy_number".
// A submission without one stores an empty string.
func (r *SQLRepository) SaveSubmission(ctx context.Context, tenantID string, sub *domain.Submission) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	raw, _ := json.Marshal(sub.Raw)

	policyNumber := fnol.PolicyNumber(sub.Raw)

	query := `
		INSERT INTO submissions (id, tenant_id, policy_number, raw, received_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		sub.ID, tenantID, policyNumber, string(raw), sub.ReceivedAt,
	)
	return err
}

// GetSubmission retrieves a submission by ID with tenant isolation.
func (r *SQLRepository) GetSubmission(ctx context.Context, tenantID string, subID string) (*domain.Submission, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, raw, received_at
		FROM submissions
		WHERE tenant_id = ? AND id = ?
	`

	var sub domain.Submission
	var raw string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, subID).Scan(
		&sub.ID, &sub.TenantID, &raw, &sub.ReceivedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if raw != "" {
		json.Unmarshal([]byte(raw), &sub.Raw)
	}

	return &sub, nil
}

// CountSubmissionsByPolicy counts submissions for a policy since the given
// time, with tenant isolation.
func (r *SQLRepository) CountSubmissionsByPolicy(ctx context.Context, tenantID string, policyNumber string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM submissions
		WHERE tenant_id = ? AND policy_number = ? AND received_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyNumber, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SaveReport stores a decision report with tenant isolation.
// Collection-valued columns are stored as JSON text.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.Report) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	extracted, _ := json.Marshal(report.Extracted)
	unknownKeys, _ := json.Marshal(report.UnknownKeys)
	missingFields, _ := json.Marshal(report.MissingFields)
	validationErrors, _ := json.Marshal(report.ValidationErrors)
	riskFlags, _ := json.Marshal(report.RiskFlags)
	metadata, _ := json.Marshal(report.Metadata)

	query := `
		INSERT INTO reports (
			id, tenant_id, submission_id, claim_type, routing, reasoning,
			extracted, unknown_keys, missing_fields, validation_errors,
			risk_flags, processed_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.SubmissionID,
		string(report.ClaimType), string(report.Routing), report.Reasoning,
		string(extracted), string(unknownKeys), string(missingFields),
		string(validationErrors), string(riskFlags),
		report.ProcessedAt, string(metadata),
	)
	return err
}

// GetReport retrieves a decision report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, submission_id, claim_type, routing, reasoning,
			   extracted, unknown_keys, missing_fields, validation_errors,
			   risk_flags, processed_at, metadata
		FROM reports
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return report, err
}

// ListReportsByRouting retrieves reports with a given routing outcome since
// the given time, newest first, with tenant isolation.
func (r *SQLRepository) ListReportsByRouting(ctx context.Context, tenantID string, routing domain.Routing, since time.Time) ([]*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, submission_id, claim_type, routing, reasoning,
			   extracted, unknown_keys, missing_fields, validation_errors,
			   risk_flags, processed_at, metadata
		FROM reports
		WHERE tenant_id = ? AND routing = ? AND processed_at >= ?
		ORDER BY processed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, string(routing), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var report domain.Report
	var claimType, routing string
	var extracted, unknownKeys, missingFields, validationErrors, riskFlags, metadata string

	err := row.Scan(
		&report.ID, &report.TenantID, &report.SubmissionID,
		&claimType, &routing, &report.Reasoning,
		&extracted, &unknownKeys, &missingFields, &validationErrors,
		&riskFlags, &report.ProcessedAt, &metadata,
	)
	if err != nil {
		return nil, err
	}

	report.ClaimType = domain.ClaimType(claimType)
	report.Routing = domain.Routing(routing)
	json.Unmarshal([]byte(extracted), &report.Extracted)
	json.Unmarshal([]byte(unknownKeys), &report.UnknownKeys)
	json.Unmarshal([]byte(missingFields), &report.MissingFields)
	json.Unmarshal([]byte(validationErrors), &report.ValidationErrors)
	json.Unmarshal([]byte(riskFlags), &report.RiskFlags)
	json.Unmarshal([]byte(metadata), &report.Metadata)

	return &report, nil
}

// SaveRuleConfig stores a risk rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, expression, action, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			action = excluded.action,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(rule.Action), enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves a risk rule configuration with tenant isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, action, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var action string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &action, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Action = domain.RuleAction(action)
	cfg.Enabled = enabled == 1

	return &cfg, nil
}

// ListRuleConfigs retrieves all enabled risk rules with tenant isolation.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, action, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var action string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &action, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Action = domain.RuleAction(action)
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
