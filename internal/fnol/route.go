package fnol

import (
	"fmt"
	"strings"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// FastTrackThreshold is the maximum estimated damage, in currency units,
// for which a clean, complete claim is fast-tracked. The boundary value
// itself still fast-tracks.
const FastTrackThreshold = 25_000

// routeInput bundles everything the routing rules may inspect.
type routeInput struct {
	validation     domain.ValidationResult
	classification domain.ClassificationResult
	fields         domain.Fields
}

// routingRules is the ordered precedence table. Rules are evaluated top to
// bottom and the first match decides; later rules never override an earlier
// decision. Kept as an explicit sequence so precedence stays auditable.
var routingRules = []struct {
	name   string
	decide func(in routeInput) (domain.RoutingDecision, bool)
}{
	{
		name: "missing-mandatory-fields",
		decide: func(in routeInput) (domain.RoutingDecision, bool) {
			if len(in.validation.MissingFields) == 0 {
				return domain.RoutingDecision{}, false
			}
			return domain.RoutingDecision{
				Routing: domain.RouteManualReview,
				Reasoning: fmt.Sprintf("Routed to manual review: mandatory fields missing: %s.",
					strings.Join(in.validation.MissingFields, ", ")),
			}, true
		},
	},
	{
		name: "suspicious-keywords",
		decide: func(in routeInput) (domain.RoutingDecision, bool) {
			keywords := domain.FlagsWithPrefix(in.classification.RiskFlags, domain.FlagPrefixSuspicious)
			if len(keywords) == 0 {
				return domain.RoutingDecision{}, false
			}
			return domain.RoutingDecision{
				Routing: domain.RouteManualReview,
				Reasoning: fmt.Sprintf("Routed to manual review: suspicious keywords detected in narrative: %s.",
					strings.Join(keywords, ", ")),
			}, true
		},
	},
	{
		name: "risk-rule-investigate",
		decide: func(in routeInput) (domain.RoutingDecision, bool) {
			rules := domain.FlagsWithPrefix(in.classification.RiskFlags, domain.FlagPrefixInvestigateRule)
			if len(rules) == 0 {
				return domain.RoutingDecision{}, false
			}
			return domain.RoutingDecision{
				Routing: domain.RouteInvestigation,
				Reasoning: fmt.Sprintf("Routed to investigation: risk rules triggered: %s.",
					strings.Join(rules, ", ")),
			}, true
		},
	},
	{
		name: "high-value",
		decide: func(in routeInput) (domain.RoutingDecision, bool) {
			if !domain.HasFlagWithPrefix(in.classification.RiskFlags, domain.FlagHighValue) {
				return domain.RoutingDecision{}, false
			}
			damage := 0.0
			if in.fields.EstimatedDamage != nil {
				damage = *in.fields.EstimatedDamage
			}
			return domain.RoutingDecision{
				Routing: domain.RouteInvestigation,
				Reasoning: fmt.Sprintf("Routed to investigation: estimated damage %.2f exceeds the high-value threshold of %d.",
					damage, HighValueThreshold),
			}, true
		},
	},
	{
		name: "risk-rule-review",
		decide: func(in routeInput) (domain.RoutingDecision, bool) {
			rules := domain.FlagsWithPrefix(in.classification.RiskFlags, domain.FlagPrefixReviewRule)
			if len(rules) == 0 {
				return domain.RoutingDecision{}, false
			}
			return domain.RoutingDecision{
				Routing: domain.RouteManualReview,
				Reasoning: fmt.Sprintf("Routed to manual review: risk rules triggered: %s.",
					strings.Join(rules, ", ")),
			}, true
		},
	},
	{
		name: "validation-errors",
		decide: func(in routeInput) (domain.RoutingDecision, bool) {
			if len(in.validation.Errors) == 0 {
				return domain.RoutingDecision{}, false
			}
			codes := make([]string, len(in.validation.Errors))
			for i, e := range in.validation.Errors {
				codes[i] = e.Message
			}
			return domain.RoutingDecision{
				Routing: domain.RouteManualReview,
				Reasoning: fmt.Sprintf("Routed to manual review: validation errors present: %s.",
					strings.Join(codes, ", ")),
			}, true
		},
	},
	{
		name: "fast-track",
		decide: func(in routeInput) (domain.RoutingDecision, bool) {
			if in.fields.EstimatedDamage == nil || *in.fields.EstimatedDamage > FastTrackThreshold {
				return domain.RoutingDecision{}, false
			}
			return domain.RoutingDecision{
				Routing: domain.RouteFastTrack,
				Reasoning: fmt.Sprintf("Routed to fast-track: all mandatory fields present and estimated damage %.2f is within the fast-track threshold of %d.",
					*in.fields.EstimatedDamage, FastTrackThreshold),
			}, true
		},
	},
}

// Route applies the ordered precedence rules over the validator and
// classifier outputs and returns exactly one routing decision with a
// non-empty justification.
func Route(validation domain.ValidationResult, classification domain.ClassificationResult, fields domain.Fields) domain.RoutingDecision {
	in := routeInput{
		validation:     validation,
		classification: classification,
		fields:         fields,
	}

	for _, rule := range routingRules {
		if decision, matched := rule.decide(in); matched {
			return decision
		}
	}

	// Default: damage absent or above the fast-track threshold with no
	// other signal.
	return domain.RoutingDecision{
		Routing:   domain.RouteManualReview,
		Reasoning: "Routed to manual review: estimated damage exceeds the fast-track threshold or could not be determined.",
	}
}
