// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawInput is an untyped FNOL submission as received from the caller.
// Keys are free-form, values are JSON-typed scalars or arrays. There are
// no invariants: the record may be partial and may carry unexpected keys.
type RawInput map[string]any

// Canonical field names. MissingFields, validation errors and the
// extracted_fields object all refer to fields by these names.
const (
	FieldPolicyNumber    = "policy_number"
	FieldCarrier         = "carrier"
	FieldLineOfBusiness  = "line_of_business"
	FieldEffectiveStart  = "effective_start"
	FieldEffectiveEnd    = "effective_end"
	FieldIncidentDate    = "incident_date"
	FieldIncidentTime    = "incident_time"
	FieldLocation        = "location"
	FieldDescription     = "description"
	FieldInsuredName     = "insured_name"
	FieldInsuredContact  = "insured_contact"
	FieldInsuredEmail    = "insured_email"
	FieldAssetType       = "asset_type"
	FieldAssetID         = "asset_id"
	FieldEstimatedDamage = "estimated_damage"
	FieldComments        = "comments"
	FieldAttachments     = "attachments"
	FieldInitialEstimate = "initial_estimate"
)

// DateLayout is the single accepted calendar date format.
const DateLayout = "2006-01-02"

// ClockLayout is the single accepted time-of-day format.
const ClockLayout = "15:04"

// Date is a calendar date without a time component.
// It marshals as "YYYY-MM-DD" rather than RFC 3339.
type Date struct {
	time.Time
}

// ParseDate parses a date in the canonical YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

// NewDate builds a Date from year, month and day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// Fields is the canonical, typed representation of an FNOL submission.
// Every canonical field is always present: strings use "" for absent,
// optional values use nil pointers, and Attachments is never nil. Downstream
// components therefore only ever perform value checks, never key checks.
type Fields struct {
	// Policy block
	PolicyNumber   string `json:"policy_number"`
	Carrier        string `json:"carrier"`
	LineOfBusiness string `json:"line_of_business"`
	EffectiveStart *Date  `json:"effective_start"`
	EffectiveEnd   *Date  `json:"effective_end"`

	// Incident block
	IncidentDate *Date  `json:"incident_date"`
	IncidentTime string `json:"incident_time"`
	Location     string `json:"location"`
	Description  string `json:"description"`

	// Insured party block
	InsuredName    string `json:"insured_name"`
	InsuredContact string `json:"insured_contact"`
	InsuredEmail   string `json:"insured_email"`

	// Asset block
	AssetType       string   `json:"asset_type"`
	AssetID         string   `json:"asset_id"`
	EstimatedDamage *float64 `json:"estimated_damage"`

	// Narrative and extras
	Comments        string   `json:"comments"`
	Attachments     []string `json:"attachments"`
	InitialEstimate *float64 `json:"initial_estimate"`
}

// Has reports whether the named canonical field carries a value.
// Unknown names report false.
func (f Fields) Has(name string) bool {
	switch name {
	case FieldPolicyNumber:
		return f.PolicyNumber != ""
	case FieldCarrier:
		return f.Carrier != ""
	case FieldLineOfBusiness:
		return f.LineOfBusiness != ""
	case FieldEffectiveStart:
		return f.EffectiveStart != nil
	case FieldEffectiveEnd:
		return f.EffectiveEnd != nil
	case FieldIncidentDate:
		return f.IncidentDate != nil
	case FieldIncidentTime:
		return f.IncidentTime != ""
	case FieldLocation:
		return f.Location != ""
	case FieldDescription:
		return f.Description != ""
	case FieldInsuredName:
		return f.InsuredName != ""
	case FieldInsuredContact:
		return f.InsuredContact != ""
	case FieldInsuredEmail:
		return f.InsuredEmail != ""
	case FieldAssetType:
		return f.AssetType != ""
	case FieldAssetID:
		return f.AssetID != ""
	case FieldEstimatedDamage:
		return f.EstimatedDamage != nil
	case FieldComments:
		return f.Comments != ""
	case FieldAttachments:
		return len(f.Attachments) > 0
	case FieldInitialEstimate:
		return f.InitialEstimate != nil
	}
	return false
}
