package fnol

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/rules"
)

// ErrMalformedInput is returned when the submission is not a key-value
// record at all. It is the only fatal condition: everything else degrades
// to absent fields or validation errors in the report.
var ErrMalformedInput = errors.New("malformed input: submission is not a key-value record")

// EngineVersion is stamped into report metadata.
const EngineVersion = "kestrel-1.0"

// Processor orchestrates the decision pipeline and assembles the report.
// It holds no per-call state: Process is a pure function of its input plus
// the loaded risk rules, and is safe to invoke concurrently.
type Processor struct {
	// Engine evaluates operator-defined supplemental risk rules.
	// Optional; with no engine (or no rules loaded) the pipeline runs the
	// built-in checks only.
	Engine *rules.Engine

	// Now supplies the processing time used by the validator's future-date
	// check. Defaults to time.Now; tests pin it.
	Now func() time.Time

	// FrequencyWindow is the lookback window in seconds handed to the risk
	// rule engine for recent_submissions. Zero disables frequency lookups.
	FrequencyWindow int
}

// NewProcessor creates a pipeline processor with default settings.
func NewProcessor() *Processor {
	return &Processor{Now: time.Now}
}

// ProcessInput carries one submission through the pipeline.
type ProcessInput struct {
	TenantID     string
	SubmissionID string
	TraceID      string
	Raw          domain.RawInput
	StartTime    time.Time
}

// Process runs extraction, validation, classification and routing over a
// raw submission and assembles the decision report. It returns a complete
// report or ErrMalformedInput; there is no partial output.
func (p *Processor) Process(ctx context.Context, input *ProcessInput) (*domain.Report, error) {
	if input == nil || input.Raw == nil {
		return nil, ErrMalformedInput
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	processedAt := now().UTC()

	// Wall-clock start for latency accounting; independent of the
	// injectable processing clock.
	start := time.Now()
	if !input.StartTime.IsZero() {
		start = input.StartTime
	}

	extractStart := time.Now()
	extracted := Extract(input.Raw)
	extractMs := time.Since(extractStart).Milliseconds()

	// Validation and classification are independent of one another; both
	// consume only the extracted fields.
	validation := Validate(extracted.Fields, processedAt)
	classification := Classify(extracted.Fields)

	decisionStart := time.Now()

	rulesEvaluated := 0
	if p.Engine != nil && p.Engine.RulesCount() > 0 {
		rulesEvaluated = p.Engine.RulesCount()
		hits := p.Engine.EvaluateAll(ctx, &rules.EvaluateInput{
			TenantID:        input.TenantID,
			SubmissionID:    input.SubmissionID,
			Fields:          extracted.Fields,
			ClaimType:       classification.ClaimType,
			FrequencyWindow: p.FrequencyWindow,
		})
		for _, hit := range hits {
			classification.RiskFlags = appendFlag(classification.RiskFlags, hit.Flag())
		}
	}

	decision := Route(validation, classification, extracted.Fields)
	decisionMs := time.Since(decisionStart).Milliseconds()

	report := &domain.Report{
		ID:               uuid.New().String(),
		TenantID:         input.TenantID,
		SubmissionID:     input.SubmissionID,
		Extracted:        extracted.Fields,
		UnknownKeys:      extracted.UnknownKeys,
		MissingFields:    validation.MissingFields,
		ValidationErrors: validation.Errors,
		ClaimType:        classification.ClaimType,
		Routing:          decision.Routing,
		RiskFlags:        classification.RiskFlags,
		Reasoning:        decision.Reasoning,
		ProcessedAt:      processedAt,
		Metadata: domain.ReportMetadata{
			TraceID:        input.TraceID,
			ExtractMs:      extractMs,
			DecisionMs:     decisionMs,
			TotalMs:        time.Since(start).Milliseconds(),
			RulesEvaluated: rulesEvaluated,
			EngineVersion:  EngineVersion,
		},
	}

	// Empty collections marshal as [] rather than null.
	if report.MissingFields == nil {
		report.MissingFields = []string{}
	}
	if report.ValidationErrors == nil {
		report.ValidationErrors = []domain.ValidationError{}
	}
	if report.RiskFlags == nil {
		report.RiskFlags = []string{}
	}

	return report, nil
}
