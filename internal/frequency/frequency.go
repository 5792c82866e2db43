// Package frequency provides submission frequency calculation.
// Repeated FNOLs for the same policy within a short window are a risk
// signal consumed by the rule engine's recent_submissions variable.
package frequency

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// Service counts recent submissions per policy number.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new frequency service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// GetSubmissionCount returns the number of submissions received for a
// policy number within the time window. This matches the FrequencyGetter
// signature expected by the rule engine.
func (s *Service) GetSubmissionCount(ctx context.Context, tenantID, policyNumber string, windowSecs int) (int64, error) {
	if tenantID == "" || policyNumber == "" {
		return 0, fmt.Errorf("tenantID and policyNumber are required")
	}

	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)
	count, err := s.repo.CountSubmissionsByPolicy(ctx, tenantID, policyNumber, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	return count, nil
}

// RecordSubmission bumps the rolling per-policy counter in the cache.
// Best-effort: counter state is advisory, the repository remains the
// source of truth for counts.
func (s *Service) RecordSubmission(ctx context.Context, tenantID, policyNumber string, window time.Duration) {
	if s.cache == nil || policyNumber == "" {
		return
	}
	_, _ = s.cache.IncrementCounter(ctx, tenantID, "policy:"+policyNumber, window)
}

// Getter returns a FrequencyGetter function for the rule engine.
func (s *Service) Getter() func(ctx context.Context, tenantID, policyNumber string, windowSecs int) (int64, error) {
	return s.GetSubmissionCount
}
