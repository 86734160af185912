// Package budget enforces rolling daily request allowances per provider
// and in aggregate.
//
// The ledger runs a reservation protocol rather than a plain counter:
// capacity is reserved before a call is issued, committed after a
// successful response, and released when the call ultimately fails, so
// failed calls never consume budget.
package budget

import (
	"sync"
	"time"
)

const defaultWindow = 24 * time.Hour

// Config sets the ceilings the ledger enforces. A zero per-provider
// ceiling means the provider is bounded only by the aggregate ceiling.
type Config struct {
	AggregateCeiling int
	ProviderCeilings map[string]int
	Window           time.Duration
}

// Ledger tracks consumed and reserved requests within the current
// rolling window. All methods are safe for concurrent use; no lock is
// ever held across a network call.
type Ledger struct {
	mu          sync.Mutex
	cfg         Config
	windowStart time.Time
	consumed    map[string]int
	reserved    map[string]int
	now         func() time.Time
}

// NewLedger builds an empty ledger starting a fresh window.
func NewLedger(cfg Config) *Ledger {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	l := &Ledger{
		cfg:      cfg,
		consumed: map[string]int{},
		reserved: map[string]int{},
		now:      time.Now,
	}
	l.windowStart = l.now()
	return l
}

// Restore seeds consumed counters from a persisted snapshot. Counters
// older than one window are discarded.
func (l *Ledger) Restore(consumed map[string]int, windowStart time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.now().Sub(windowStart) >= l.cfg.Window {
		return
	}
	l.windowStart = windowStart
	for provider, n := range consumed {
		if n > 0 {
			l.consumed[provider] = n
		}
	}
}

// Reserve asks for n requests on behalf of provider. It returns false
// when granting them would push the provider or the aggregate past its
// ceiling; a denied reservation changes nothing.
func (l *Ledger) Reserve(provider string, n int) bool {
	if n <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	if ceiling, ok := l.cfg.ProviderCeilings[provider]; ok && ceiling > 0 {
		if l.consumed[provider]+l.reserved[provider]+n > ceiling {
			return false
		}
	}
	if l.cfg.AggregateCeiling > 0 {
		if l.totalLocked(l.consumed)+l.totalLocked(l.reserved)+n > l.cfg.AggregateCeiling {
			return false
		}
	}

	l.reserved[provider] += n
	return true
}

// Commit converts n reserved requests into consumed ones after a
// successful call.
func (l *Ledger) Commit(provider string, n int) {
	if n <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if n > l.reserved[provider] {
		n = l.reserved[provider]
	}
	l.reserved[provider] -= n
	l.consumed[provider] += n
}

// Release returns n reserved requests to the pool after a failed call.
func (l *Ledger) Release(provider string, n int) {
	if n <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if n > l.reserved[provider] {
		n = l.reserved[provider]
	}
	l.reserved[provider] -= n
}

// Consumed reports the committed usage for provider in the current window.
func (l *Ledger) Consumed(provider string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return l.consumed[provider]
}

// Snapshot returns a copy of committed counters plus the window start,
// for persistence.
func (l *Ledger) Snapshot() (map[string]int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	out := make(map[string]int, len(l.consumed))
	for provider, n := range l.consumed {
		out[provider] = n
	}
	return out, l.windowStart
}

func (l *Ledger) rolloverLocked() {
	if l.now().Sub(l.windowStart) < l.cfg.Window {
		return
	}
	l.windowStart = l.now()
	l.consumed = map[string]int{}
}

func (l *Ledger) totalLocked(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}
