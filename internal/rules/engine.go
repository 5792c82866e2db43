// Package rules provides the CEL-Go engine for operator-defined risk rules.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-claims/kestrel/internal/domain"
)

// FrequencyGetter returns the number of submissions received for a policy
// number within a time window. Wired from the frequency service so rules
// can react to repeated FNOLs for the same policy.
type FrequencyGetter func(ctx context.Context, tenantID, policyNumber string, windowSecs int) (int64, error)

// Engine compiles and evaluates supplemental risk rules against extracted
// FNOL fields. Rules are hot-reloadable; evaluation is read-only.
type Engine struct {
	mu              sync.RWMutex
	env             *cel.Env
	compiledRules   map[string]*CompiledRule
	frequencyGetter FrequencyGetter
	maxWorkers      int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a risk rule engine. The frequency getter may be nil,
// in which case recent_submissions is always 0.
func NewEngine(frequencyGetter FrequencyGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing the extracted field set
	env, err := cel.NewEnv(
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("damage", cel.DoubleType),
		cel.Variable("has_damage", cel.BoolType),
		cel.Variable("initial_estimate", cel.DoubleType),
		cel.Variable("claim_type", cel.StringType),
		cel.Variable("policy_number", cel.StringType),
		cel.Variable("carrier", cel.StringType),
		cel.Variable("line_of_business", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("comments", cel.StringType),
		cel.Variable("asset_type", cel.StringType),
		cel.Variable("attachment_count", cel.IntType),
		cel.Variable("recent_submissions", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:             env,
		compiledRules:   make(map[string]*CompiledRule),
		frequencyGetter: frequencyGetter,
		maxWorkers:      maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// Enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// GetLoadedRules returns the currently loaded rule configurations,
// ordered by rule ID.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// EvaluateInput holds the extracted submission data for rule evaluation.
type EvaluateInput struct {
	TenantID     string
	SubmissionID string
	Fields       domain.Fields
	ClaimType    domain.ClaimType

	// FrequencyWindow is the lookback window in seconds for
	// recent_submissions. Zero disables the frequency lookup.
	FrequencyWindow int
}

// EvaluateAll evaluates all loaded rules in parallel and returns the hits,
// ordered by rule ID so downstream flag order is deterministic. A rule hits
// when its expression evaluates to true or a score >= 1.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) []domain.RuleHit {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	var recentSubmissions int64
	if e.frequencyGetter != nil && input.FrequencyWindow > 0 && input.Fields.PolicyNumber != "" {
		count, err := e.frequencyGetter(ctx, input.TenantID, input.Fields.PolicyNumber, input.FrequencyWindow)
		if err == nil {
			recentSubmissions = count
		}
	}

	activation := buildActivation(input, recentSubmissions)

	results := make([]*domain.RuleHit, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	hits := make([]domain.RuleHit, 0, len(results))
	for _, r := range results {
		if r != nil {
			hits = append(hits, *r)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].RuleID < hits[j].RuleID })

	return hits
}

// evaluateRule runs a single rule and returns a hit, or nil when the rule
// does not trigger or errors out.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) *domain.RuleHit {
	start := time.Now()

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return nil
	}

	score := toScore(out)
	if score < 1.0 {
		return nil
	}

	return &domain.RuleHit{
		RuleID:    rule.Config.ID,
		Name:      rule.Config.Name,
		Action:    rule.Config.Action,
		Score:     score,
		ProcessMs: time.Since(start).Milliseconds(),
	}
}

// buildActivation maps the extracted fields into CEL variables. Absent
// numbers surface as 0 alongside a presence flag so expressions can
// distinguish "no estimate" from "zero damage".
func buildActivation(input *EvaluateInput, recentSubmissions int64) map[string]any {
	f := input.Fields

	damage := 0.0
	hasDamage := f.EstimatedDamage != nil
	if hasDamage {
		damage = *f.EstimatedDamage
	}

	initialEstimate := 0.0
	if f.InitialEstimate != nil {
		initialEstimate = *f.InitialEstimate
	}

	incidentDate := ""
	if f.IncidentDate != nil {
		incidentDate = f.IncidentDate.String()
	}

	fieldMap := map[string]any{
		domain.FieldPolicyNumber:    f.PolicyNumber,
		domain.FieldCarrier:         f.Carrier,
		domain.FieldLineOfBusiness:  f.LineOfBusiness,
		domain.FieldIncidentDate:    incidentDate,
		domain.FieldIncidentTime:    f.IncidentTime,
		domain.FieldLocation:        f.Location,
		domain.FieldDescription:     f.Description,
		domain.FieldInsuredName:     f.InsuredName,
		domain.FieldInsuredContact:  f.InsuredContact,
		domain.FieldInsuredEmail:    f.InsuredEmail,
		domain.FieldAssetType:       f.AssetType,
		domain.FieldAssetID:         f.AssetID,
		domain.FieldEstimatedDamage: damage,
		domain.FieldComments:        f.Comments,
		domain.FieldAttachments:     f.Attachments,
	}

	return map[string]any{
		"fields":             fieldMap,
		"damage":             damage,
		"has_damage":         hasDamage,
		"initial_estimate":   initialEstimate,
		"claim_type":         string(input.ClaimType),
		"policy_number":      f.PolicyNumber,
		"carrier":            f.Carrier,
		"line_of_business":   f.LineOfBusiness,
		"location":           f.Location,
		"description":        f.Description,
		"comments":           f.Comments,
		"asset_type":         f.AssetType,
		"attachment_count":   int64(len(f.Attachments)),
		"recent_submissions": recentSubmissions,
	}
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.Action != domain.ActionReview && cfg.Action != domain.ActionInvestigate {
		return nil, fmt.Errorf("rule %s: action must be %q or %q", cfg.ID, domain.ActionReview, domain.ActionInvestigate)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
