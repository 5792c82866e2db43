package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaSubmissions = `
CREATE TABLE IF NOT EXISTS submissions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    policy_number TEXT,
    raw TEXT NOT NULL,
    received_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_tenant ON submissions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_submissions_policy ON submissions(tenant_id, policy_number);
CREATE INDEX IF NOT EXISTS idx_submissions_received ON submissions(tenant_id, received_at);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    submission_id TEXT NOT NULL,
    claim_type TEXT NOT NULL,
    routing TEXT NOT NULL,
    reasoning TEXT NOT NULL,
    extracted TEXT NOT NULL,
    unknown_keys TEXT,
    missing_fields TEXT NOT NULL,
    validation_errors TEXT NOT NULL,
    risk_flags TEXT NOT NULL,
    processed_at TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reports_submission ON reports(tenant_id, submission_id);
CREATE INDEX IF NOT EXISTS idx_reports_routing ON reports(tenant_id, routing);
CREATE INDEX IF NOT EXISTS idx_reports_processed ON reports(tenant_id, processed_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    action TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// AllSchemas returns every schema statement in creation order.
func AllSchemas() []string {
	return []string{
		schemaSubmissions,
		schemaReports,
		schemaRuleConfigs,
	}
}
