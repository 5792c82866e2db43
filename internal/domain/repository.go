package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Submission operations
	SaveSubmission(ctx context.Context, tenantID string, sub *Submission) error
	GetSubmission(ctx context.Context, tenantID string, subID string) (*Submission, error)

	// CountSubmissionsByPolicy returns the number of submissions received
	// for a policy number since the given time. Feeds the
	// recent_submissions variable of supplemental risk rules.
	CountSubmissionsByPolicy(ctx context.Context, tenantID string, policyNumber string, since time.Time) (int64, error)

	// Decision reports
	SaveReport(ctx context.Context, tenantID string, report *Report) error
	GetReport(ctx context.Context, tenantID string, reportID string) (*Report, error)
	ListReportsByRouting(ctx context.Context, tenantID string, routing Routing, since time.Time) ([]*Report, error)

	// Risk rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
