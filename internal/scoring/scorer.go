// Package scoring asks the AI collaborator whether a candidate is
// relevant to the active topic and whether it clears the quality bar.
// Ambiguous model output fails closed: it never admits content.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"ContentCurator/internal/budget"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/repair"
	"ContentCurator/internal/retry"
)

const (
	defaultConcurrency = 4
	maxSummaryChars    = 1200

	// aiProvider is the ledger key for the AI-call budget, which is
	// tracked separately from the source-provider budget.
	aiProvider = "ai"
)

// ErrRepairFailed marks a verdict that fails closed because the model
// response could not be parsed. Counted apart from genuine rejections
// so operators can tell model unreliability from low-quality content.
var ErrRepairFailed = errors.New("scoring: model response unrepairable")

// ErrCompletionFailed marks a candidate whose completion call never
// produced a response, retries included. Kept apart from ErrRepairFailed
// so connectivity trouble and model unreliability count separately.
var ErrCompletionFailed = errors.New("scoring: completion call failed")

// ErrBudgetExhausted means the AI-call allowance for the current window
// is spent; remaining candidates are skipped, not failed.
var ErrBudgetExhausted = errors.New("scoring: ai budget exhausted")

// Scorer produces admission verdicts through the completion client.
type Scorer struct {
	client      ports.CompletionClient
	ledger      *budget.Ledger
	policy      retry.Policy
	concurrency int64
	logger      *slog.Logger
}

// New wires a scorer. A nil ledger disables the AI budget.
func New(client ports.CompletionClient, ledger *budget.Ledger, policy retry.Policy, concurrency int, logger *slog.Logger) *Scorer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Scorer{
		client:      client,
		ledger:      ledger,
		policy:      policy,
		concurrency: int64(concurrency),
		logger:      logger,
	}
}

// Score sends one bounded prompt and repairs the response into a verdict.
func (s *Scorer) Score(ctx context.Context, candidate domain.Candidate, topic string) (domain.Verdict, error) {
	if s.ledger != nil && !s.ledger.Reserve(aiProvider, 1) {
		return domain.Verdict{}, ErrBudgetExhausted
	}

	var raw string
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = s.client.Complete(ctx, buildPrompt(candidate, topic))
		return callErr
	})
	if err != nil {
		if s.ledger != nil {
			s.ledger.Release(aiProvider, 1)
		}
		return domain.Verdict{}, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	if s.ledger != nil {
		s.ledger.Commit(aiProvider, 1)
	}

	var parsed struct {
		Score  float64 `json:"score"`
		Pass   bool    `json:"pass"`
		Reason string  `json:"reason"`
	}
	if err := repair.Decode(raw, &parsed); err != nil {
		s.warn("response repair failed", "candidate", candidate.ExternalID, "error", err)
		return domain.Verdict{}, ErrRepairFailed
	}

	return domain.Verdict{
		Score:  clamp(parsed.Score),
		Pass:   parsed.Pass,
		Reason: parsed.Reason,
		Model:  s.client.Model(),
	}, nil
}

// Scored pairs one candidate with its verdict or scoring error.
type Scored struct {
	Candidate domain.Candidate
	Verdict   domain.Verdict
	Err       error
}

// ScoreBatch scores candidates concurrently, bounded by the configured
// ceiling. Result order matches input order. Once the AI budget is
// exhausted, unstarted candidates are returned with ErrBudgetExhausted
// without further calls.
func (s *Scorer) ScoreBatch(ctx context.Context, candidates []domain.Candidate, topic string) []Scored {
	results := make([]Scored, len(candidates))
	sem := semaphore.NewWeighted(s.concurrency)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		exhausted bool
	)

	for i, candidate := range candidates {
		i, candidate := i, candidate
		mu.Lock()
		done := exhausted
		mu.Unlock()
		if done || ctx.Err() != nil {
			results[i] = Scored{Candidate: candidate, Err: ErrBudgetExhausted}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Scored{Candidate: candidate, Err: err}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			verdict, err := s.Score(ctx, candidate, topic)
			results[i] = Scored{Candidate: candidate, Verdict: verdict, Err: err}
			if errors.Is(err, ErrBudgetExhausted) {
				mu.Lock()
				exhausted = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return results
}

func buildPrompt(candidate domain.Candidate, topic string) string {
	summary := candidate.Summary
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars]
	}

	var b strings.Builder
	b.WriteString("You review content candidates for the topic \"")
	b.WriteString(topic)
	b.WriteString("\".\n")
	b.WriteString("Rate the item below. Reply with JSON only: ")
	b.WriteString(`{"score": <relevance 0.0-1.0>, "pass": <quality boolean>, "reason": "<one sentence>"}`)
	b.WriteString("\n\nTitle: ")
	b.WriteString(candidate.Title)
	if summary != "" {
		b.WriteString("\nSummary: ")
		b.WriteString(summary)
	}
	return b.String()
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func (s *Scorer) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
