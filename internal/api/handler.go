package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/fnol"
	"github.com/opensource-claims/kestrel/internal/frequency"
	"github.com/opensource-claims/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *fnol.Processor
	frequency *frequency.Service
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *fnol.Processor, freq *frequency.Service, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		processor: processor,
		frequency: freq,
		version:   version,
	}
}

// reportCacheTTL bounds how long decision reports stay hot.
const reportCacheTTL = 10 * time.Minute

// SubmitFNOL handles POST /fnol requests: it accepts a raw first-notice
// record, runs the triage pipeline synchronously and returns the decision
// report. The body may use any field naming the extractor's synonym tables
// recognize; unknown keys are preserved in the report.
func (h *Handler) SubmitFNOL(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var raw domain.RawInput
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "request body must be a JSON object",
		})
		return
	}

	submissionID := uuid.New().String()

	// Persist the raw submission before triage so the audit trail survives
	// even if processing fails.
	if h.repo != nil {
		sub := &domain.Submission{
			ID:         submissionID,
			TenantID:   tenantID,
			Raw:        raw,
			ReceivedAt: time.Now().UTC(),
		}
		if err := h.repo.SaveSubmission(ctx, tenantID, sub); err != nil {
			slog.Error("failed to save submission", "error", err)
		}
	}

	report, err := h.processor.Process(ctx, &fnol.ProcessInput{
		TenantID:     tenantID,
		SubmissionID: submissionID,
		TraceID:      traceID,
		Raw:          raw,
		StartTime:    start,
	})
	if err != nil {
		if errors.Is(err, fnol.ErrMalformedInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("triage failed", "submission_id", submissionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "triage failed",
		})
		return
	}

	// Bump the per-policy frequency counter so later submissions see this one
	if h.frequency != nil && report.Extracted.PolicyNumber != "" {
		h.frequency.RecordSubmission(ctx, tenantID, report.Extracted.PolicyNumber, time.Hour)
	}

	if h.repo != nil {
		if err := h.repo.SaveReport(ctx, tenantID, report); err != nil {
			slog.Error("failed to save report", "submission_id", submissionID, "error", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.SetReport(ctx, tenantID, report.ID, report, reportCacheTTL); err != nil {
			slog.Warn("failed to cache report", "report_id", report.ID, "error", err)
		}
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("fnol.routing", string(report.Routing)),
		attribute.String("fnol.claim_type", string(report.ClaimType)),
		attribute.Int("fnol.risk_flags", len(report.RiskFlags)),
	)

	// Publish downstream events; investigation routings additionally go to
	// the alerting topic.
	if h.bus != nil {
		payload, _ := json.Marshal(report)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicReport, payload); err != nil {
			slog.Error("failed to publish report", "report_id", report.ID, "error", err)
		}
		if domain.NeedsInvestigation(report) {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicInvestigation, payload); err != nil {
				slog.Error("failed to publish investigation alert", "report_id", report.ID, "error", err)
			}
		}
	}

	w.Header().Set(RoutingHeader, string(report.Routing))
	writeJSON(w, http.StatusOK, report)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetReport retrieves a decision report by ID, cache first.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	if reportID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "report id is required",
		})
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetReport(ctx, tenantID, reportID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	report, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		slog.Error("failed to get report", "id", reportID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetReport(ctx, tenantID, reportID, report, reportCacheTTL)
	}

	writeJSON(w, http.StatusOK, report)
}

// ListReports returns reports filtered by routing disposition.
// Query params: routing (required), since (RFC 3339, default 24h ago).
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	routing := domain.Routing(r.URL.Query().Get("routing"))
	switch routing {
	case domain.RouteFastTrack, domain.RouteManualReview, domain.RouteInvestigation:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "routing must be one of fast-track, manual-review, investigation",
		})
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC 3339",
			})
			return
		}
		since = parsed
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	reports, err := h.repo.ListReportsByRouting(ctx, tenantID, routing, since)
	if err != nil {
		slog.Error("failed to list reports", "routing", routing, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list reports",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// GetSubmission retrieves a raw submission by ID.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	subID := chi.URLParam(r, "id")

	if subID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "submission id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	sub, err := h.repo.GetSubmission(ctx, tenantID, subID)
	if err != nil {
		slog.Error("failed to get submission", "id", subID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "submission not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

// ListRules returns all loaded risk rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a risk rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Action      domain.RuleAction `json:"action"`
	Enabled     bool              `json:"enabled"`
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// CreateRule creates a new risk rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	if req.Action == "" {
		req.Action = domain.ActionReview
	}
	if req.Action != domain.ActionReview && req.Action != domain.ActionInvestigate {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action must be review or investigate",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Action:      req.Action,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository (global tenant ID)
	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
