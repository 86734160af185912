package ports

import (
	"context"
	"time"

	"ContentCurator/internal/domain"
)

// CompletionClient sends a prompt to the AI service and returns its raw text.
// No structure is guaranteed; callers repair the response themselves.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// ArticleStore persists admitted items and answers fingerprint lookups
// for cross-run deduplication.
type ArticleStore interface {
	InsertAdmitted(ctx context.Context, item domain.AdmittedItem) error
	ExistsFingerprint(ctx context.Context, fingerprint, topic string, since time.Time) (bool, error)
	RecentFingerprints(ctx context.Context, topic string, since time.Time) (map[string]struct{}, error)
}

// RunStore owns run records. Acquire must refuse to create a second
// unfinished record so the overlap guard survives process restarts.
type RunStore interface {
	Acquire(ctx context.Context, run domain.RunRecord) (bool, error)
	Finish(ctx context.Context, run domain.RunRecord) error
}

// BudgetStore persists ledger counters across restarts.
type BudgetStore interface {
	LoadBudget(ctx context.Context) (map[string]int, time.Time, error)
	SaveBudget(ctx context.Context, consumed map[string]int, windowStart time.Time) error
}

// Notifier publishes run summaries to an operator channel.
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.RunSummary) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
