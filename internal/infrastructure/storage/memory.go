package storage

import (
	"context"
	"sync"
	"time"

	"ContentCurator/internal/domain"
	"ContentCurator/internal/ports"
)

// MemoryStore is a process-local store used when no database is
// configured. The overlap guard holds within the process only.
type MemoryStore struct {
	mu       sync.Mutex
	admitted []domain.AdmittedItem
	running  *domain.RunRecord
	budget   map[string]int
	window   time.Time
}

var _ ports.ArticleStore = (*MemoryStore)(nil)
var _ ports.RunStore = (*MemoryStore)(nil)
var _ ports.BudgetStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{budget: map[string]int{}}
}

// InsertAdmitted appends the item.
func (m *MemoryStore) InsertAdmitted(ctx context.Context, item domain.AdmittedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admitted = append(m.admitted, item)
	return nil
}

// ExistsFingerprint reports whether fp was admitted for topic since the
// given time.
func (m *MemoryStore) ExistsFingerprint(ctx context.Context, fingerprint, topic string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.admitted {
		if item.Fingerprint == fingerprint && item.Topic == topic && !item.AdmittedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// RecentFingerprints returns fingerprints admitted for topic within the
// lookback window.
func (m *MemoryStore) RecentFingerprints(ctx context.Context, topic string, since time.Time) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]struct{}{}
	for _, item := range m.admitted {
		if item.Topic == topic && !item.AdmittedAt.Before(since) {
			out[item.Fingerprint] = struct{}{}
		}
	}
	return out, nil
}

// Acquire refuses a second unfinished run.
func (m *MemoryStore) Acquire(ctx context.Context, run domain.RunRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running != nil {
		return false, nil
	}
	m.running = &run
	return true, nil
}

// Finish clears the running marker.
func (m *MemoryStore) Finish(ctx context.Context, run domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = nil
	return nil
}

// LoadBudget returns the stored counters.
func (m *MemoryStore) LoadBudget(ctx context.Context) (map[string]int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.budget))
	for k, v := range m.budget {
		out[k] = v
	}
	return out, m.window, nil
}

// SaveBudget replaces the stored counters.
func (m *MemoryStore) SaveBudget(ctx context.Context, consumed map[string]int, windowStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.budget = make(map[string]int, len(consumed))
	for k, v := range consumed {
		m.budget[k] = v
	}
	m.window = windowStart
	return nil
}
