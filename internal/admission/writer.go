// Package admission persists accepted candidates and registers their
// fingerprints so later duplicate checks see them.
package admission

import (
	"context"
	"log/slog"
	"time"

	"ContentCurator/internal/dedup"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/retry"
)

// Writer admits candidates one at a time. A persistence failure for one
// item never blocks the rest of the batch.
type Writer struct {
	store    ports.ArticleStore
	index    *dedup.Index
	policy   retry.Policy
	lookback time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New wires the writer against the store and the shared fingerprint
// index. lookback bounds the store-side duplicate check; zero disables
// it and leaves only the in-process index.
func New(store ports.ArticleStore, index *dedup.Index, policy retry.Policy, lookback time.Duration, logger *slog.Logger) *Writer {
	return &Writer{
		store:    store,
		index:    index,
		policy:   policy,
		lookback: lookback,
		logger:   logger,
		now:      time.Now,
	}
}

// Admit persists candidate with its verdict and registers its
// fingerprint. It returns false when the item was a late duplicate or
// persistence failed after retry; the error reports persistence trouble
// only, duplicates are a silent skip.
func (w *Writer) Admit(ctx context.Context, candidate domain.Candidate, verdict domain.Verdict, topic string) (bool, error) {
	fp := dedup.Fingerprint(candidate.Title)

	// Registration precedes the write so a concurrent duplicate in the
	// same run cannot slip past.
	if w.index != nil && !w.index.Add(fp) {
		w.debug("late duplicate skipped", "candidate", candidate.ExternalID)
		return false, nil
	}

	// The index only sees this process; ask the store about items
	// admitted elsewhere after the run's fingerprint snapshot was taken.
	if w.lookback > 0 {
		exists, err := w.store.ExistsFingerprint(ctx, fp, topic, w.now().Add(-w.lookback))
		if err != nil {
			w.warn("fingerprint lookup failed, admitting anyway", "candidate", candidate.ExternalID, "error", err)
		} else if exists {
			w.debug("already admitted elsewhere, skipped", "candidate", candidate.ExternalID)
			return false, nil
		}
	}

	item := domain.AdmittedItem{
		Candidate:   candidate,
		Verdict:     verdict,
		Topic:       topic,
		Fingerprint: fp,
		AdmittedAt:  w.now(),
	}

	err := w.policy.Do(ctx, func(ctx context.Context) error {
		return w.store.InsertAdmitted(ctx, item)
	})
	if err != nil {
		w.warn("persist failed, item lost for this run", "candidate", candidate.ExternalID, "error", err)
		return false, err
	}

	w.debug("candidate admitted", "candidate", candidate.ExternalID, "score", verdict.Score)
	return true, nil
}

func (w *Writer) debug(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Debug(msg, args...)
	}
}

func (w *Writer) warn(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}
