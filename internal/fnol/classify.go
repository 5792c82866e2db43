package fnol

import (
	"strings"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// HighValueThreshold is the estimated damage above which a claim is tagged
// high_value_claim, in currency units.
const HighValueThreshold = 500_000

// claimTypeRules map keyword hits in specific fields to a claim type.
// First matching rule in table order wins.
var claimTypeRules = []struct {
	source    func(domain.Fields) string
	keyword   string
	claimType domain.ClaimType
}{
	{assetType, "vehicle", domain.ClaimAuto},
	{assetType, "car", domain.ClaimAuto},
	{assetType, "auto", domain.ClaimAuto},
	{lineOfBusiness, "auto", domain.ClaimAuto},
	{lineOfBusiness, "motor", domain.ClaimAuto},
	{assetType, "building", domain.ClaimProperty},
	{assetType, "home", domain.ClaimProperty},
	{assetType, "property", domain.ClaimProperty},
	{lineOfBusiness, "property", domain.ClaimProperty},
	{lineOfBusiness, "homeowner", domain.ClaimProperty},
	{lineOfBusiness, "liability", domain.ClaimLiability},
	{description, "liability", domain.ClaimLiability},
}

func assetType(f domain.Fields) string      { return f.AssetType }
func lineOfBusiness(f domain.Fields) string { return f.LineOfBusiness }
func description(f domain.Fields) string    { return f.Description }

// suspiciousKeywords are scanned over description and comments. Order here
// is flag emission order; each keyword contributes at most one flag.
var suspiciousKeywords = []string{"fraud", "inconsistent", "staged"}

// Classify assigns a claim type and computes risk flags from the extracted
// fields. Flags form an ordered set: first-seen order, no duplicates.
func Classify(f domain.Fields) domain.ClassificationResult {
	result := domain.ClassificationResult{ClaimType: domain.ClaimOther}

	for _, rule := range claimTypeRules {
		if haystack := strings.ToLower(rule.source(f)); haystack != "" &&
			strings.Contains(haystack, rule.keyword) {
			result.ClaimType = rule.claimType
			break
		}
	}

	narrative := strings.ToLower(f.Description + " " + f.Comments)
	for _, kw := range suspiciousKeywords {
		if strings.Contains(narrative, kw) {
			result.RiskFlags = appendFlag(result.RiskFlags, domain.FlagPrefixSuspicious+kw)
		}
	}

	if f.EstimatedDamage != nil && *f.EstimatedDamage > HighValueThreshold {
		result.RiskFlags = appendFlag(result.RiskFlags, domain.FlagHighValue)
	}

	return result
}

// appendFlag adds a tag unless it is already present, preserving order.
func appendFlag(flags []string, tag string) []string {
	for _, f := range flags {
		if f == tag {
			return flags
		}
	}
	return append(flags, tag)
}
