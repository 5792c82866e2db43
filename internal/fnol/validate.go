package fnol

import (
	"regexp"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// MandatoryFields is the fixed mandatory field set, in the order missing
// fields are reported.
var MandatoryFields = []string{
	domain.FieldPolicyNumber,
	domain.FieldIncidentDate,
	domain.FieldLocation,
	domain.FieldDescription,
	domain.FieldInsuredName,
	domain.FieldEstimatedDamage,
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// consistencyChecks run independently, in declaration order. A check whose
// inputs are absent is skipped silently, never reported as an error.
var consistencyChecks = []struct {
	field  string
	code   string
	failed func(f domain.Fields, now time.Time) bool
}{
	{
		field: domain.FieldIncidentDate,
		code:  "incident_date_in_future",
		failed: func(f domain.Fields, now time.Time) bool {
			return f.IncidentDate != nil && f.IncidentDate.After(now)
		},
	},
	{
		field: domain.FieldEstimatedDamage,
		code:  "negative_estimated_damage",
		failed: func(f domain.Fields, _ time.Time) bool {
			return f.EstimatedDamage != nil && *f.EstimatedDamage < 0
		},
	},
	{
		field: domain.FieldInsuredEmail,
		code:  "invalid_email_format",
		failed: func(f domain.Fields, _ time.Time) bool {
			return f.InsuredEmail != "" && !emailPattern.MatchString(f.InsuredEmail)
		},
	},
	{
		field: domain.FieldIncidentDate,
		code:  "incident_outside_policy_period",
		failed: func(f domain.Fields, _ time.Time) bool {
			if f.IncidentDate == nil || f.EffectiveStart == nil || f.EffectiveEnd == nil {
				return false
			}
			d := f.IncidentDate.Time
			return d.Before(f.EffectiveStart.Time) || d.After(f.EffectiveEnd.Time)
		},
	},
}

// Validate checks mandatory field presence and cross-field consistency.
// All checks run regardless of earlier failures; now is the processing time
// used for the future-date check.
func Validate(f domain.Fields, now time.Time) domain.ValidationResult {
	var result domain.ValidationResult

	for _, field := range MandatoryFields {
		if !f.Has(field) {
			result.MissingFields = append(result.MissingFields, field)
		}
	}

	for _, check := range consistencyChecks {
		if check.failed(f, now) {
			result.Errors = append(result.Errors, domain.ValidationError{
				Field:   check.field,
				Message: check.code,
			})
		}
	}

	return result
}
