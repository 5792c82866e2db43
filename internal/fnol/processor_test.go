package fnol

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/rules"
)

func testProcessor() *Processor {
	p := NewProcessor()
	p.Now = testNow
	return p
}

func cleanSubmission(estimatedDamage float64) domain.RawInput {
	return domain.RawInput{
		"policy_number":    "POL-2026-001",
		"incident_date":    "2026-06-01",
		"location":         "44 Oak Ave, Springfield",
		"description":      "water damage in basement",
		"insured_name":     "Dana Fox",
		"estimated_damage": estimatedDamage,
	}
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("FastTrack", func(t *testing.T) {
		report, err := testProcessor().Process(ctx, &ProcessInput{
			TenantID: "t1",
			Raw:      cleanSubmission(15_000),
		})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if report.Routing != domain.RouteFastTrack {
			t.Errorf("expected fast-track, got %s: %s", report.Routing, report.Reasoning)
		}
		if len(report.RiskFlags) != 0 {
			t.Errorf("expected no risk flags, got %v", report.RiskFlags)
		}
		if len(report.MissingFields) != 0 {
			t.Errorf("expected no missing fields, got %v", report.MissingFields)
		}
	})

	t.Run("StagedKeyword", func(t *testing.T) {
		raw := cleanSubmission(15_000)
		raw["description"] = "collision that looks staged"

		report, err := testProcessor().Process(ctx, &ProcessInput{TenantID: "t1", Raw: raw})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if report.Routing != domain.RouteManualReview {
			t.Errorf("expected manual-review, got %s", report.Routing)
		}
		want := []string{"suspicious_keyword:staged"}
		if !reflect.DeepEqual(report.RiskFlags, want) {
			t.Errorf("expected flags %v, got %v", want, report.RiskFlags)
		}
	})

	t.Run("HighValue", func(t *testing.T) {
		report, err := testProcessor().Process(ctx, &ProcessInput{
			TenantID: "t1",
			Raw:      cleanSubmission(600_000),
		})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if report.Routing != domain.RouteInvestigation {
			t.Errorf("expected investigation, got %s", report.Routing)
		}
		if !domain.HasFlagWithPrefix(report.RiskFlags, domain.FlagHighValue) {
			t.Errorf("expected high_value_claim flag, got %v", report.RiskFlags)
		}
	})

	t.Run("MissingMandatoryFields", func(t *testing.T) {
		report, err := testProcessor().Process(ctx, &ProcessInput{
			TenantID: "t1",
			Raw:      domain.RawInput{"description": "minor scrape"},
		})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if report.Routing != domain.RouteManualReview {
			t.Errorf("expected manual-review, got %s", report.Routing)
		}
		if len(report.MissingFields) == 0 {
			t.Error("expected missing fields in report")
		}
		if !strings.Contains(report.Reasoning, "missing") {
			t.Errorf("reasoning should mention missing fields: %s", report.Reasoning)
		}
	})

	t.Run("MalformedInput", func(t *testing.T) {
		_, err := testProcessor().Process(ctx, &ProcessInput{TenantID: "t1", Raw: nil})
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("expected ErrMalformedInput, got %v", err)
		}

		_, err = testProcessor().Process(ctx, nil)
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("expected ErrMalformedInput for nil input, got %v", err)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		p := testProcessor()
		raw := cleanSubmission(600_000)
		raw["comments"] = "story is inconsistent"

		first, err := p.Process(ctx, &ProcessInput{TenantID: "t1", Raw: raw})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		second, err := p.Process(ctx, &ProcessInput{TenantID: "t1", Raw: raw})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if first.Routing != second.Routing {
			t.Errorf("routing not stable: %s vs %s", first.Routing, second.Routing)
		}
		if first.ClaimType != second.ClaimType {
			t.Errorf("claim type not stable: %s vs %s", first.ClaimType, second.ClaimType)
		}
		if !reflect.DeepEqual(first.RiskFlags, second.RiskFlags) {
			t.Errorf("flags not stable: %v vs %v", first.RiskFlags, second.RiskFlags)
		}
		if first.Reasoning != second.Reasoning {
			t.Errorf("reasoning not stable: %q vs %q", first.Reasoning, second.Reasoning)
		}
	})

	t.Run("CollectionsMarshalAsArrays", func(t *testing.T) {
		report, err := testProcessor().Process(ctx, &ProcessInput{
			TenantID: "t1",
			Raw:      cleanSubmission(100),
		})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		encoded, err := json.Marshal(report)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		body := string(encoded)

		for _, key := range []string{`"missing_fields":[]`, `"validation_errors":[]`, `"risk_flags":[]`} {
			if !strings.Contains(body, key) {
				t.Errorf("expected %s in report JSON: %s", key, body)
			}
		}
		if strings.Contains(body, "null") && strings.Contains(body, `"attachments":null`) {
			t.Errorf("attachments must marshal as [], got %s", body)
		}
	})

	t.Run("Metadata", func(t *testing.T) {
		report, err := testProcessor().Process(ctx, &ProcessInput{
			TenantID:     "t1",
			SubmissionID: "sub-42",
			TraceID:      "trace-42",
			Raw:          cleanSubmission(100),
			StartTime:    time.Now(),
		})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if report.ID == "" {
			t.Error("expected a report ID")
		}
		if report.SubmissionID != "sub-42" {
			t.Errorf("expected submission ID sub-42, got %s", report.SubmissionID)
		}
		if report.Metadata.TraceID != "trace-42" {
			t.Errorf("expected trace ID trace-42, got %s", report.Metadata.TraceID)
		}
		if report.Metadata.EngineVersion != EngineVersion {
			t.Errorf("expected engine version %s, got %s", EngineVersion, report.Metadata.EngineVersion)
		}
		if !report.ProcessedAt.Equal(testNow().UTC()) {
			t.Errorf("expected pinned processing time, got %v", report.ProcessedAt)
		}
	})

	t.Run("WithRiskRules", func(t *testing.T) {
		engine, err := rules.NewEngine(nil, 5)
		if err != nil {
			t.Fatalf("failed to create engine: %v", err)
		}
		err = engine.LoadRule(&domain.RuleConfig{
			ID:         "midnight-water",
			Name:       "Water claims at midnight",
			Expression: `description.contains("water") && damage > 10000.0`,
			Action:     domain.ActionInvestigate,
			Enabled:    true,
		})
		if err != nil {
			t.Fatalf("failed to load rule: %v", err)
		}

		p := testProcessor()
		p.Engine = engine

		report, err := p.Process(ctx, &ProcessInput{
			TenantID: "t1",
			Raw:      cleanSubmission(20_000),
		})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if report.Routing != domain.RouteInvestigation {
			t.Errorf("expected investigation from risk rule, got %s: %s",
				report.Routing, report.Reasoning)
		}
		if !domain.HasFlagWithPrefix(report.RiskFlags, domain.FlagPrefixInvestigateRule) {
			t.Errorf("expected investigate_rule flag, got %v", report.RiskFlags)
		}
		if report.Metadata.RulesEvaluated != 1 {
			t.Errorf("expected 1 rule evaluated, got %d", report.Metadata.RulesEvaluated)
		}
	})

	t.Run("EndToEndExample", func(t *testing.T) {
		// A realistic intake form payload using mixed key spellings
		raw := domain.RawInput{
			"PolicyNumber":    "HH-2211",
			"LOB":             "Homeowner",
			"Date_Of_Loss":    "2026-05-20",
			"Incident_Time":   "03:45",
			"Location":        "8 Birch Lane",
			"Narrative":       "burst pipe flooded the ground floor",
			"Claimant":        "Riley Chen",
			"Email":           "riley.chen@example.com",
			"Damage_Estimate": "18250",
			"Documents":       []any{"photos.zip", "plumber_invoice.pdf"},
			"agent_code":      "AG-77",
		}

		report, err := testProcessor().Process(ctx, &ProcessInput{TenantID: "t1", Raw: raw})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if report.ClaimType != domain.ClaimProperty {
			t.Errorf("expected property claim, got %s", report.ClaimType)
		}
		if report.Routing != domain.RouteFastTrack {
			t.Errorf("expected fast-track, got %s: %s", report.Routing, report.Reasoning)
		}
		if len(report.Extracted.Attachments) != 2 {
			t.Errorf("expected 2 attachments, got %v", report.Extracted.Attachments)
		}
		if !reflect.DeepEqual(report.UnknownKeys, []string{"agent_code"}) {
			t.Errorf("expected unknown key agent_code, got %v", report.UnknownKeys)
		}
	})
}
