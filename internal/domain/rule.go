package domain

// RuleAction determines how a triggered risk rule influences routing.
type RuleAction string

const (
	// ActionReview sends the claim to manual review when the rule triggers.
	ActionReview RuleAction = "review"

	// ActionInvestigate escalates the claim to investigation when the
	// rule triggers.
	ActionInvestigate RuleAction = "investigate"
)

// RuleConfig defines an operator-supplied supplemental risk rule.
// The expression is written in CEL over the extracted field set and must
// return bool, int or double; a result of true (or >= 1) triggers the rule.
// Triggered rules contribute risk flags on top of the built-in keyword and
// high-value checks; they never weaken a built-in signal.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate against the extracted fields
	Expression string `json:"expression"`

	// Action taken when the rule triggers
	Action RuleAction `json:"action"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleHit is the outcome of one triggered risk rule.
type RuleHit struct {
	RuleID    string     `json:"ruleId"`
	Name      string     `json:"name"`
	Action    RuleAction `json:"action"`
	Score     float64    `json:"score"`
	ProcessMs int64      `json:"processMs"`
}

// Flag renders the hit as a risk flag tag for the routing engine.
func (h RuleHit) Flag() string {
	if h.Action == ActionInvestigate {
		return FlagPrefixInvestigateRule + h.RuleID
	}
	return FlagPrefixReviewRule + h.RuleID
}
