// Package fanout queries all configured source connectors concurrently,
// subject to the budget ledger. A single provider failure never aborts
// the run for the others.
package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ContentCurator/internal/budget"
	"ContentCurator/internal/connector"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/retry"
)

const defaultCallTimeout = 30 * time.Second

// Stats reports per-stage fan-out outcomes for the run summary.
type Stats struct {
	Fetched          int
	ProviderFailures int
	BudgetDenied     int
}

// Fetcher coordinates provider fan-out.
type Fetcher struct {
	sources     []connector.Connector
	ledger      *budget.Ledger
	policy      retry.Policy
	callTimeout time.Duration
	logger      *slog.Logger
}

// New wires the fetcher. A zero callTimeout falls back to 30s.
func New(sources []connector.Connector, ledger *budget.Ledger, policy retry.Policy, callTimeout time.Duration, logger *slog.Logger) *Fetcher {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Fetcher{
		sources:     sources,
		ledger:      ledger,
		policy:      policy,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Fetch queries every provider whose budget reservation is granted.
// Reservations are committed only after a successful response and
// released when a provider ultimately fails, so the ledger reflects
// actual usage.
func (f *Fetcher) Fetch(ctx context.Context, q connector.Query) ([]domain.Candidate, Stats, error) {
	var (
		mu         sync.Mutex
		aggregated []domain.Candidate
		stats      Stats
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, src := range f.sources {
		src := src
		estimate := src.EstimateRequests(q)
		if f.ledger != nil && !f.ledger.Reserve(src.Name(), estimate) {
			stats.BudgetDenied++
			f.debug("budget denied, provider skipped", "provider", src.Name(), "estimate", estimate)
			continue
		}

		g.Go(func() error {
			results, err := f.search(ctx, src, q)
			if err != nil {
				if f.ledger != nil {
					f.ledger.Release(src.Name(), estimate)
				}
				mu.Lock()
				stats.ProviderFailures++
				mu.Unlock()
				f.warn("provider failed, excluded from run", "provider", src.Name(), "error", err)
				// Provider failures are counted, never escalated.
				return nil
			}

			if f.ledger != nil {
				f.ledger.Commit(src.Name(), estimate)
			}
			mu.Lock()
			stats.Fetched += len(results)
			aggregated = append(aggregated, results...)
			mu.Unlock()
			f.debug("provider produced candidates", "provider", src.Name(), "count", len(results))
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return aggregated, stats, err
	}
	return aggregated, stats, nil
}

func (f *Fetcher) search(ctx context.Context, src connector.Connector, q connector.Query) ([]domain.Candidate, error) {
	var results []domain.Candidate
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
		defer cancel()

		found, err := src.Search(callCtx, q)
		if err != nil {
			return err
		}
		results = found
		return nil
	})
	return results, err
}

func (f *Fetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

func (f *Fetcher) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
