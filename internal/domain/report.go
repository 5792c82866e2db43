package domain

import (
	"strings"
	"time"
)

// ClaimType is the classified line of a claim.
type ClaimType string

const (
	ClaimAuto      ClaimType = "auto"
	ClaimProperty  ClaimType = "property"
	ClaimLiability ClaimType = "liability"
	ClaimOther     ClaimType = "other"
)

// Routing is the final disposition of a processed FNOL.
type Routing string

const (
	// RouteFastTrack means the claim is complete, clean and low value.
	RouteFastTrack Routing = "fast-track"

	// RouteManualReview means a human adjuster must inspect the claim.
	RouteManualReview Routing = "manual-review"

	// RouteInvestigation flags the claim for fraud/risk investigation.
	RouteInvestigation Routing = "investigation"
)

// Risk flag tags and prefixes.
const (
	// FlagHighValue marks claims whose estimated damage exceeds the
	// high-value threshold.
	FlagHighValue = "high_value_claim"

	// FlagPrefixSuspicious prefixes keyword-match flags, e.g.
	// "suspicious_keyword:staged".
	FlagPrefixSuspicious = "suspicious_keyword:"

	// FlagPrefixReviewRule prefixes flags raised by operator-defined
	// risk rules whose action is "review".
	FlagPrefixReviewRule = "review_rule:"

	// FlagPrefixInvestigateRule prefixes flags raised by operator-defined
	// risk rules whose action is "investigate".
	FlagPrefixInvestigateRule = "investigate_rule:"
)

// HasFlagWithPrefix reports whether any flag carries the given prefix.
func HasFlagWithPrefix(flags []string, prefix string) bool {
	for _, f := range flags {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

// FlagsWithPrefix returns the suffixes of all flags carrying the prefix,
// preserving order.
func FlagsWithPrefix(flags []string, prefix string) []string {
	var out []string
	for _, f := range flags {
		if strings.HasPrefix(f, prefix) {
			out = append(out, strings.TrimPrefix(f, prefix))
		}
	}
	return out
}

// ValidationError describes a single cross-field consistency failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the outcome of the completeness and consistency
// checks. MissingFields is ordered by the mandatory set's declaration order
// and never contains duplicates; Errors is ordered by check declaration
// order.
type ValidationResult struct {
	MissingFields []string          `json:"missing_fields"`
	Errors        []ValidationError `json:"validation_errors"`
}

// Clean reports whether validation found nothing to object to.
func (v ValidationResult) Clean() bool {
	return len(v.MissingFields) == 0 && len(v.Errors) == 0
}

// ClassificationResult holds the claim type and risk flags. RiskFlags is an
// ordered set: first-seen order, no duplicate tags.
type ClassificationResult struct {
	ClaimType ClaimType `json:"claim_type"`
	RiskFlags []string  `json:"risk_flags"`
}

// RoutingDecision is the single decision produced by the routing engine,
// with a non-empty human-readable justification.
type RoutingDecision struct {
	Routing   Routing `json:"routing"`
	Reasoning string  `json:"reasoning"`
}

// Submission is an FNOL record as accepted for processing, before any
// pipeline stage has run.
type Submission struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	Raw        RawInput  `json:"raw"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// ReportMetadata carries processing information for audit and latency
// accounting, mirrored into the stored report.
type ReportMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	ExtractMs      int64  `json:"extractMs"`
	DecisionMs     int64  `json:"decisionMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	EngineVersion  string `json:"engineVersion"`
}

// Report is the complete decision report for one FNOL submission.
// It is immutable once assembled; nothing mutates it after Process returns.
type Report struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId,omitempty"`
	SubmissionID string `json:"submissionId,omitempty"`

	Extracted   Fields   `json:"extracted_fields"`
	UnknownKeys []string `json:"unknown_keys,omitempty"`

	MissingFields    []string          `json:"missing_fields"`
	ValidationErrors []ValidationError `json:"validation_errors"`

	ClaimType ClaimType `json:"claim_type"`
	Routing   Routing   `json:"routing"`
	RiskFlags []string  `json:"risk_flags"`
	Reasoning string    `json:"reasoning"`

	ProcessedAt time.Time      `json:"processed_at"`
	Metadata    ReportMetadata `json:"metadata"`
}

// NeedsInvestigation reports whether the claim was routed for fraud/risk
// investigation. Used by the worker to decide on alert publication.
func NeedsInvestigation(r *Report) bool {
	return r.Routing == RouteInvestigation
}
