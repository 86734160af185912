package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"ContentCurator/internal/cache"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/ports"
)

// Service wires the interval driver with the pipeline and exposes the
// manual-control surface consumed by outer layers.
type Service struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	analyses *cache.AnalysisCache
	logger   *slog.Logger

	mu   sync.Mutex
	last *domain.RunSummary
}

// NewService returns a helper to start/stop recurring runs.
func NewService(driver ports.Scheduler, pipeline *Pipeline, analyses *cache.AnalysisCache, logger *slog.Logger) *Service {
	return &Service{
		driver:   driver,
		pipeline: pipeline,
		analyses: analyses,
		logger:   logger,
	}
}

// Start registers the pipeline with the provided scheduler driver.
func (s *Service) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.runOnce(ctx)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Service) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

// TriggerRunNow executes one cycle outside the schedule. The overlap
// guard still applies.
func (s *Service) TriggerRunNow(ctx context.Context) domain.RunSummary {
	return s.runOnce(ctx)
}

// GetLastRunSummary returns the most recent run outcome, if any.
func (s *Service) GetLastRunSummary() (domain.RunSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return domain.RunSummary{}, false
	}
	return *s.last, true
}

// Analyze serves a derived analysis through the cache, coalescing
// concurrent requests for the same configuration.
func (s *Service) Analyze(ctx context.Context, req cache.Request, compute cache.ComputeFn, forceRefresh bool) (json.RawMessage, bool, error) {
	return s.analyses.GetOrCompute(ctx, req.Key(), compute, forceRefresh)
}

// InvalidateAnalysis evicts one cached analysis.
func (s *Service) InvalidateAnalysis(req cache.Request) {
	s.analyses.Invalidate(req.Key())
}

// InvalidateAllAnalyses clears the analysis cache.
func (s *Service) InvalidateAllAnalyses() {
	s.analyses.InvalidateAll()
}

func (s *Service) runOnce(ctx context.Context) domain.RunSummary {
	summary, err := s.pipeline.RunCycle(ctx)
	if err != nil {
		s.warn("run finished with error", "run", summary.RunID, "status", summary.Status, "error", err)
	} else {
		s.info("run finished", "run", summary.RunID, "status", summary.Status,
			"fetched", summary.Counts.Fetched, "admitted", summary.Counts.Admitted)
	}

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	return summary
}

func (s *Service) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
