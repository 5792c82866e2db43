// Package fnol implements the FNOL decision pipeline: field extraction,
// validation, claim classification, routing and report assembly.
package fnol

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// fieldSynonyms maps each canonical field to the accepted source keys, in
// priority order. Matching is case-insensitive; the first synonym found in
// the input wins. Declaration order here is the canonical field order.
var fieldSynonyms = []struct {
	field string
	keys  []string
}{
	{domain.FieldPolicyNumber, []string{"policy_number", "policynumber", "policyno", "policy_no", "policy"}},
	{domain.FieldCarrier, []string{"carrier", "insurer", "insurance_company"}},
	{domain.FieldLineOfBusiness, []string{"line_of_business", "lineofbusiness", "lob"}},
	{domain.FieldEffectiveStart, []string{"effective_start", "effective_date", "policy_start", "effectivestart"}},
	{domain.FieldEffectiveEnd, []string{"effective_end", "expiry_date", "policy_end", "effectiveend"}},
	{domain.FieldIncidentDate, []string{"incident_date", "incidentdate", "date_of_loss", "loss_date"}},
	{domain.FieldIncidentTime, []string{"incident_time", "incidenttime", "time_of_loss"}},
	{domain.FieldLocation, []string{"location", "incident_location", "loss_location"}},
	{domain.FieldDescription, []string{"description", "incident_description", "narrative"}},
	{domain.FieldInsuredName, []string{"insured_name", "insuredname", "claimant_name", "claimant"}},
	{domain.FieldInsuredContact, []string{"insured_contact", "contact_number", "phone", "contact_phone"}},
	{domain.FieldInsuredEmail, []string{"insured_email", "contact_email", "email"}},
	{domain.FieldAssetType, []string{"asset_type", "assettype"}},
	{domain.FieldAssetID, []string{"asset_id", "assetid", "vin", "registration"}},
	{domain.FieldEstimatedDamage, []string{"estimated_damage", "estimateddamage", "damage_estimate", "estimated_loss"}},
	{domain.FieldComments, []string{"comments", "remarks", "notes"}},
	{domain.FieldAttachments, []string{"attachments", "documents", "files"}},
	{domain.FieldInitialEstimate, []string{"initial_estimate", "initialestimate", "reserve"}},
}

// Extracted is the output of field extraction: the canonical field set plus
// the input keys that matched no canonical field.
type Extracted struct {
	Fields      domain.Fields
	UnknownKeys []string
}

// Extract normalizes a raw submission into the canonical field set.
// It never fails: every canonical field resolves to a typed value or its
// absent representation, and unparsable values degrade to absent. The
// significance of an absent field is decided by the validator, not here.
func Extract(raw domain.RawInput) Extracted {
	// Index the input by lowercased key. Raw keys are iterated in sorted
	// order so collisions after lowercasing resolve deterministically.
	normalized := make(map[string]any, len(raw))
	rawKeys := make([]string, 0, len(raw))
	for k := range raw {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)
	for _, k := range rawKeys {
		lk := strings.ToLower(strings.TrimSpace(k))
		if _, seen := normalized[lk]; !seen {
			normalized[lk] = raw[k]
		}
	}

	lookup := func(field string) (any, bool) {
		for _, entry := range fieldSynonyms {
			if entry.field != field {
				continue
			}
			for _, key := range entry.keys {
				if v, ok := normalized[key]; ok {
					return v, true
				}
			}
		}
		return nil, false
	}

	var f domain.Fields
	f.PolicyNumber = toString(first(lookup(domain.FieldPolicyNumber)))
	f.Carrier = toString(first(lookup(domain.FieldCarrier)))
	f.LineOfBusiness = toString(first(lookup(domain.FieldLineOfBusiness)))
	f.EffectiveStart = toDate(first(lookup(domain.FieldEffectiveStart)))
	f.EffectiveEnd = toDate(first(lookup(domain.FieldEffectiveEnd)))
	f.IncidentDate = toDate(first(lookup(domain.FieldIncidentDate)))
	f.IncidentTime = toClock(first(lookup(domain.FieldIncidentTime)))
	f.Location = toString(first(lookup(domain.FieldLocation)))
	f.Description = toString(first(lookup(domain.FieldDescription)))
	f.InsuredName = toString(first(lookup(domain.FieldInsuredName)))
	f.InsuredContact = toString(first(lookup(domain.FieldInsuredContact)))
	f.InsuredEmail = toString(first(lookup(domain.FieldInsuredEmail)))
	f.AssetType = toString(first(lookup(domain.FieldAssetType)))
	f.AssetID = toString(first(lookup(domain.FieldAssetID)))
	f.EstimatedDamage = toNumber(first(lookup(domain.FieldEstimatedDamage)))
	f.Comments = toString(first(lookup(domain.FieldComments)))
	f.Attachments = toStringSlice(first(lookup(domain.FieldAttachments)))
	f.InitialEstimate = toNumber(first(lookup(domain.FieldInitialEstimate)))

	// An unknown key is one no canonical field accepts under any spelling.
	known := make(map[string]bool)
	for _, entry := range fieldSynonyms {
		for _, key := range entry.keys {
			known[key] = true
		}
	}

	var unknown []string
	for _, k := range rawKeys {
		lk := strings.ToLower(strings.TrimSpace(k))
		if !known[lk] {
			unknown = append(unknown, k)
		}
	}

	return Extracted{Fields: f, UnknownKeys: unknown}
}

// PolicyNumber resolves the policy number from a raw submission through the
// same synonym table Extract uses. Callers that index or count by policy
// must use this rather than reading a literal key, or synonym-keyed
// submissions fall out of the per-policy counts.
func PolicyNumber(raw domain.RawInput) string {
	return Extract(raw).Fields.PolicyNumber
}

// first adapts a (value, ok) lookup result so absent inputs flow through
// the coercion helpers as nil.
func first(v any, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

func toString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func toNumber(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func toDate(v any) *domain.Date {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	d, err := domain.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &d
}

func toClock(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if _, err := time.Parse(domain.ClockLayout, s); err != nil {
		return ""
	}
	return s
}

// toStringSlice always yields a slice: a single string is wrapped, anything
// unusable yields an empty slice, never nil handed downstream as absent.
func toStringSlice(v any) []string {
	switch a := v.(type) {
	case string:
		if s := strings.TrimSpace(a); s != "" {
			return []string{s}
		}
	case []string:
		out := make([]string, 0, len(a))
		for _, item := range a {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(a))
		for _, item := range a {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return []string{}
}
