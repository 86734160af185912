package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"ContentCurator/internal/domain"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	dup := &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	if !isUniqueViolation(dup) {
		t.Error("unique violation not recognized")
	}
	if !isUniqueViolation(fmt.Errorf("acquire run: %w", dup)) {
		t.Error("wrapped unique violation not recognized")
	}
	if isUniqueViolation(&pq.Error{Code: "40001"}) {
		t.Error("serialization failure misread as unique violation")
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Error("plain error misread as unique violation")
	}
	if isUniqueViolation(nil) {
		t.Error("nil misread as unique violation")
	}
}

func TestSchemaGuardsSingleRunningRecord(t *testing.T) {
	t.Parallel()

	// The conditional insert alone is racy; the partial unique index is
	// what rejects the second concurrent running row.
	if !strings.Contains(schema, "pipeline_runs_one_running") ||
		!strings.Contains(schema, "WHERE status = 'running'") {
		t.Error("schema lacks the single-running-row unique index")
	}
}

func TestMemoryAcquireAdmitsSingleWinner(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := store.Acquire(context.Background(), domain.RunRecord{
				ID:        fmt.Sprintf("run-%d", n),
				StartedAt: time.Now(),
				Status:    domain.RunRunning,
			})
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestMemoryAcquireReleasedByFinish(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	rec := domain.RunRecord{ID: "a", Status: domain.RunRunning}

	ok, err := store.Acquire(context.Background(), rec)
	if err != nil || !ok {
		t.Fatalf("first acquire = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = store.Acquire(context.Background(), domain.RunRecord{ID: "b"})
	if err != nil || ok {
		t.Fatalf("overlapping acquire = (%v, %v), want (false, nil)", ok, err)
	}

	rec.Status = domain.RunCompleted
	if err := store.Finish(context.Background(), rec); err != nil {
		t.Fatalf("finish: %v", err)
	}

	ok, err = store.Acquire(context.Background(), domain.RunRecord{ID: "c"})
	if err != nil || !ok {
		t.Fatalf("acquire after finish = (%v, %v), want (true, nil)", ok, err)
	}
}
