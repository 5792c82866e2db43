package fnol

import (
	"reflect"
	"testing"

	"github.com/opensource-claims/kestrel/internal/domain"
)

func TestExtract(t *testing.T) {
	t.Run("CanonicalKeys", func(t *testing.T) {
		raw := domain.RawInput{
			"policy_number":    "POL-123",
			"incident_date":    "2026-03-10",
			"location":         "Springfield",
			"description":      "rear-end collision",
			"insured_name":     "Jordan Blake",
			"estimated_damage": 12000.0,
		}

		out := Extract(raw)
		f := out.Fields

		if f.PolicyNumber != "POL-123" {
			t.Errorf("expected policy_number POL-123, got %q", f.PolicyNumber)
		}
		if f.IncidentDate == nil || f.IncidentDate.String() != "2026-03-10" {
			t.Errorf("expected incident_date 2026-03-10, got %v", f.IncidentDate)
		}
		if f.EstimatedDamage == nil || *f.EstimatedDamage != 12000.0 {
			t.Errorf("expected estimated_damage 12000, got %v", f.EstimatedDamage)
		}
		if len(out.UnknownKeys) != 0 {
			t.Errorf("expected no unknown keys, got %v", out.UnknownKeys)
		}
	})

	t.Run("SynonymsAndCase", func(t *testing.T) {
		raw := domain.RawInput{
			"PolicyNo":        "POL-9",
			"Date_Of_Loss":    "2026-01-05",
			"Loss_Location":   "Route 9",
			"Narrative":       "hail damage to roof",
			"Claimant":        "Ana Ruiz",
			"Damage_Estimate": "8400.50",
			"Contact_Email":   "ana@example.com",
		}

		f := Extract(raw).Fields

		if f.PolicyNumber != "POL-9" {
			t.Errorf("synonym policyno not mapped, got %q", f.PolicyNumber)
		}
		if f.IncidentDate == nil {
			t.Error("synonym date_of_loss not mapped")
		}
		if f.Location != "Route 9" {
			t.Errorf("synonym loss_location not mapped, got %q", f.Location)
		}
		if f.Description != "hail damage to roof" {
			t.Errorf("synonym narrative not mapped, got %q", f.Description)
		}
		if f.InsuredName != "Ana Ruiz" {
			t.Errorf("synonym claimant not mapped, got %q", f.InsuredName)
		}
		if f.EstimatedDamage == nil || *f.EstimatedDamage != 8400.50 {
			t.Errorf("numeric string not coerced, got %v", f.EstimatedDamage)
		}
		if f.InsuredEmail != "ana@example.com" {
			t.Errorf("synonym contact_email not mapped, got %q", f.InsuredEmail)
		}
	})

	t.Run("FirstSynonymWins", func(t *testing.T) {
		raw := domain.RawInput{
			"policy_number": "PRIMARY",
			"policyno":      "SECONDARY",
		}

		f := Extract(raw).Fields
		if f.PolicyNumber != "PRIMARY" {
			t.Errorf("expected first synonym to win, got %q", f.PolicyNumber)
		}
	})

	t.Run("UnknownKeysPreserved", func(t *testing.T) {
		raw := domain.RawInput{
			"policy_number": "POL-1",
			"favorite_color": "blue",
			"agent_notes":    "called twice",
		}

		out := Extract(raw)
		want := []string{"agent_notes", "favorite_color"}
		if !reflect.DeepEqual(out.UnknownKeys, want) {
			t.Errorf("expected unknown keys %v, got %v", want, out.UnknownKeys)
		}
	})

	t.Run("UnparsableValuesDegradeToAbsent", func(t *testing.T) {
		raw := domain.RawInput{
			"incident_date":    "not-a-date",
			"estimated_damage": "lots",
			"incident_time":    "25:99",
			"policy_number":    12345, // wrong type
		}

		f := Extract(raw).Fields

		if f.IncidentDate != nil {
			t.Errorf("expected unparsable date to be absent, got %v", f.IncidentDate)
		}
		if f.EstimatedDamage != nil {
			t.Errorf("expected unparsable damage to be absent, got %v", f.EstimatedDamage)
		}
		if f.IncidentTime != "" {
			t.Errorf("expected invalid time to be absent, got %q", f.IncidentTime)
		}
		if f.PolicyNumber != "" {
			t.Errorf("expected non-string policy number to be absent, got %q", f.PolicyNumber)
		}
	})

	t.Run("AttachmentsAlwaysSlice", func(t *testing.T) {
		cases := []struct {
			name string
			raw  domain.RawInput
			want []string
		}{
			{"Absent", domain.RawInput{}, []string{}},
			{"SingleString", domain.RawInput{"attachments": "photo.jpg"}, []string{"photo.jpg"}},
			{"Array", domain.RawInput{"attachments": []any{"a.pdf", "b.pdf"}}, []string{"a.pdf", "b.pdf"}},
			{"MixedArray", domain.RawInput{"attachments": []any{"a.pdf", 42}}, []string{"a.pdf"}},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := Extract(tc.raw).Fields
				if f.Attachments == nil {
					t.Fatal("attachments must never be nil")
				}
				if !reflect.DeepEqual(f.Attachments, tc.want) {
					t.Errorf("expected %v, got %v", tc.want, f.Attachments)
				}
			})
		}
	})

	t.Run("NeverFails", func(t *testing.T) {
		// Arbitrary junk in every value slot must still produce a field set
		raw := domain.RawInput{
			"policy_number":    map[string]any{"nested": true},
			"incident_date":    []any{1, 2, 3},
			"estimated_damage": true,
			"attachments":      3.14,
			"description":      "",
		}

		out := Extract(raw)
		if out.Fields.Has(domain.FieldPolicyNumber) {
			t.Error("nested value should degrade to absent")
		}
		if out.Fields.Attachments == nil {
			t.Error("attachments must degrade to empty slice")
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		raw := domain.RawInput{
			"Policy_Number": "UPPER",
			"policy_number": "lower",
		}

		first := Extract(raw).Fields.PolicyNumber
		for i := 0; i < 20; i++ {
			if got := Extract(raw).Fields.PolicyNumber; got != first {
				t.Fatalf("extraction not deterministic: %q vs %q", first, got)
			}
		}
	})
}
