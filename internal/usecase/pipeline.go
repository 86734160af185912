package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ContentCurator/internal/admission"
	"ContentCurator/internal/budget"
	"ContentCurator/internal/connector"
	"ContentCurator/internal/dedup"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/fanout"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/scoring"
)

// RunConfig carries the admission decision parameters for one cycle.
type RunConfig struct {
	Topic              string
	Keywords           []string
	DateWindow         time.Duration
	RelevanceThreshold float64
	QualityControl     bool
	MaxItemsPerRun     int
	DedupLookback      time.Duration
	RunDeadline        time.Duration
}

// PipelineDeps wires all collaborators into the admission pipeline.
type PipelineDeps struct {
	Fetcher  *fanout.Fetcher
	Scorer   *scoring.Scorer
	Writer   *admission.Writer
	Store    ports.ArticleStore
	Runs     ports.RunStore
	Budgets  ports.BudgetStore
	Ledger   *budget.Ledger
	Notifier ports.Notifier
	Logger   *slog.Logger
	Config   RunConfig
}

// Pipeline implements the content-admission workflow: fan-out, dedup,
// scoring, quality gate, admission.
type Pipeline struct {
	fetcher  *fanout.Fetcher
	scorer   *scoring.Scorer
	writer   *admission.Writer
	store    ports.ArticleStore
	runs     ports.RunStore
	budgets  ports.BudgetStore
	ledger   *budget.Ledger
	notifier ports.Notifier
	logger   *slog.Logger
	cfg      RunConfig
	now      func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		fetcher:  deps.Fetcher,
		scorer:   deps.Scorer,
		writer:   deps.Writer,
		store:    deps.Store,
		runs:     deps.Runs,
		budgets:  deps.Budgets,
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		cfg:      deps.Config,
		now:      time.Now,
	}
}

// RunCycle executes exactly one logical run. When an unfinished run
// record already exists the call returns a skipped-overlap summary and
// performs no work. Partial progress of a failed run is never rolled
// back: already-admitted items stay admitted.
func (p *Pipeline) RunCycle(ctx context.Context) (domain.RunSummary, error) {
	rec := domain.RunRecord{
		ID:        uuid.NewString(),
		StartedAt: p.now(),
		Status:    domain.RunRunning,
	}

	acquired, err := p.runs.Acquire(ctx, rec)
	if err != nil {
		rec.Status = domain.RunFailed
		rec.FinishedAt = p.now()
		rec.Error = err.Error()
		return rec.Summary(), fmt.Errorf("acquire run record: %w", err)
	}
	if !acquired {
		p.debug("previous run still in progress, skipping")
		rec.Status = domain.RunSkipped
		rec.FinishedAt = p.now()
		return rec.Summary(), nil
	}

	runCtx := ctx
	if p.cfg.RunDeadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.RunDeadline)
		defer cancel()
	}

	runErr := p.execute(runCtx, &rec.Counts)

	rec.FinishedAt = p.now()
	if runErr != nil {
		rec.Status = domain.RunFailed
		rec.Error = runErr.Error()
	} else {
		rec.Status = domain.RunCompleted
	}

	p.finalize(rec)
	return rec.Summary(), runErr
}

// execute walks the stages, accumulating counts as it goes. Counts
// gathered before a failure are retained.
func (p *Pipeline) execute(ctx context.Context, counts *domain.StageCounts) error {
	now := p.now()
	q := connector.Query{
		Keywords: p.cfg.Keywords,
		From:     now.Add(-p.cfg.DateWindow),
		To:       now,
		Limit:    p.cfg.MaxItemsPerRun,
	}

	candidates, fstats, err := p.fetcher.Fetch(ctx, q)
	counts.Fetched = fstats.Fetched
	counts.ProviderFailures = fstats.ProviderFailures
	counts.BudgetDenied = fstats.BudgetDenied
	if err != nil {
		return fmt.Errorf("fan-out: %w", err)
	}

	existing, err := p.store.RecentFingerprints(ctx, p.cfg.Topic, now.Add(-p.cfg.DedupLookback))
	if err != nil {
		return fmt.Errorf("load admitted fingerprints: %w", err)
	}

	kept := dedup.Filter(candidates, existing)
	counts.Duplicates = len(candidates) - len(kept)

	if p.cfg.MaxItemsPerRun > 0 && len(kept) > p.cfg.MaxItemsPerRun {
		kept = kept[:p.cfg.MaxItemsPerRun]
	}

	for _, scored := range p.scorer.ScoreBatch(ctx, kept, p.cfg.Topic) {
		switch {
		case errors.Is(scored.Err, scoring.ErrBudgetExhausted):
			// Deliberate skip; the source will resurface the item.
			p.debug("ai budget exhausted, candidate skipped", "candidate", scored.Candidate.ExternalID)
		case errors.Is(scored.Err, scoring.ErrCompletionFailed):
			counts.TransportFailures++
		case scored.Err != nil:
			counts.RepairFailures++
		case scored.Verdict.Score < p.cfg.RelevanceThreshold:
			counts.BelowThreshold++
		case p.cfg.QualityControl && !scored.Verdict.Pass:
			counts.QualityRejections++
		default:
			admitted, admitErr := p.writer.Admit(ctx, scored.Candidate, scored.Verdict, p.cfg.Topic)
			switch {
			case admitErr != nil:
				counts.PersistFailures++
			case admitted:
				counts.Admitted++
			default:
				counts.Duplicates++
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	return nil
}

// finalize closes the run record and reports the summary. Failures here
// are logged, never escalated: the next tick proceeds independently.
func (p *Pipeline) finalize(rec domain.RunRecord) {
	// The record must be finished even when the run context is spent.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.runs.Finish(ctx, rec); err != nil {
		p.warn("finalize run record", "run", rec.ID, "error", err)
	}

	if p.budgets != nil && p.ledger != nil {
		consumed, windowStart := p.ledger.Snapshot()
		if err := p.budgets.SaveBudget(ctx, consumed, windowStart); err != nil {
			p.warn("persist budget snapshot", "error", err)
		}
	}

	if p.notifier != nil {
		if err := p.notifier.PublishSummary(ctx, rec.Summary()); err != nil {
			p.warn("publish run summary", "error", err)
		}
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
