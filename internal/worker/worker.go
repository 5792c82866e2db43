// Package worker provides async FNOL processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/fnol"
	"github.com/opensource-claims/kestrel/internal/frequency"
)

// Worker processes FNOL submissions asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	processor *fnol.Processor
	frequency *frequency.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, processor *fnol.Processor, freq *frequency.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		processor: processor,
		frequency: freq,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicFNOLReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicFNOLReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processSubmission(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicFNOLReceived,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processSubmission(ctx, msg.TenantID, msg)
}

// SubmissionMessage is the message payload for async FNOL processing.
type SubmissionMessage struct {
	SubmissionID string          `json:"submissionId"`
	TenantID     string          `json:"tenantId"`
	TraceID      string          `json:"traceId"`
	Raw          domain.RawInput `json:"raw"`
}

// processSubmission runs a submission through the triage pipeline.
func (w *Worker) processSubmission(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var subMsg SubmissionMessage
	if err := json.Unmarshal(msg.Payload, &subMsg); err != nil {
		slog.Error("failed to parse submission message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if subMsg.TenantID != "" {
		tenantID = subMsg.TenantID
	}

	traceID := subMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing submission",
		"submission_id", subMsg.SubmissionID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	report, err := w.processor.Process(ctx, &fnol.ProcessInput{
		TenantID:     tenantID,
		SubmissionID: subMsg.SubmissionID,
		TraceID:      traceID,
		Raw:          subMsg.Raw,
		StartTime:    start,
	})
	if err != nil {
		slog.Error("triage failed",
			"submission_id", subMsg.SubmissionID,
			"error", err,
		)
		return err
	}

	// Record the submission so frequency-based rules see it
	if w.frequency != nil && report.Extracted.PolicyNumber != "" {
		w.frequency.RecordSubmission(ctx, tenantID, report.Extracted.PolicyNumber, time.Hour)
	}

	if w.repo != nil {
		if err := w.repo.SaveReport(ctx, tenantID, report); err != nil {
			slog.Error("failed to save report",
				"submission_id", subMsg.SubmissionID,
				"error", err,
			)
		}
	}

	reportPayload, _ := json.Marshal(report)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicReport, reportPayload); err != nil {
		slog.Error("failed to publish report",
			"submission_id", subMsg.SubmissionID,
			"error", err,
		)
	}

	if domain.NeedsInvestigation(report) {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicInvestigation, reportPayload); err != nil {
			slog.Error("failed to publish investigation alert",
				"submission_id", subMsg.SubmissionID,
				"error", err,
			)
		}
	}

	slog.Info("submission processed",
		"submission_id", subMsg.SubmissionID,
		"tenant_id", tenantID,
		"routing", report.Routing,
		"claim_type", report.ClaimType,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
