package domain

import "time"

// Candidate is a raw item fetched from a provider before any admission decision.
type Candidate struct {
	ExternalID  string
	Title       string
	Summary     string
	URL         string
	Provider    string
	PublishedAt time.Time
	FetchedAt   time.Time
}

// Verdict captures the scoring outcome for one Candidate.
type Verdict struct {
	Score  float64
	Pass   bool
	Reason string
	Model  string
}

// AdmittedItem is a Candidate plus its Verdict, handed to the store.
type AdmittedItem struct {
	Candidate   Candidate
	Verdict     Verdict
	Topic       string
	Fingerprint string
	AdmittedAt  time.Time
}

// RunStatus enumerates the lifecycle of a pipeline run record.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped-overlap"
)

// StageCounts accumulates per-stage outcomes of a single run.
type StageCounts struct {
	Fetched           int
	ProviderFailures  int
	BudgetDenied      int
	Duplicates        int
	BelowThreshold    int
	QualityRejections int
	RepairFailures    int
	TransportFailures int
	Admitted          int
	PersistFailures   int
}

// RunRecord is the persisted audit row for one scheduler invocation.
// The overlap guard keys off an unfinished record, so it must be
// written before any stage executes.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Counts     StageCounts
	Error      string
}

// RunSummary is the operator-facing view of a finished (or skipped) run.
type RunSummary struct {
	RunID      string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Counts     StageCounts
	Error      string
}

// Summary converts a finalized record into its reportable form.
func (r RunRecord) Summary() RunSummary {
	return RunSummary{
		RunID:      r.ID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Counts:     r.Counts,
		Error:      r.Error,
	}
}
