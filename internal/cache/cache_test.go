package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestKeyStableAndDistinct(t *testing.T) {
	t.Parallel()

	a := Request{Topic: "ai", DateFrom: "2026-08-01", DateTo: "2026-08-30", Model: "gpt-4o-mini", View: "overview"}
	b := a
	c := a
	c.View = "trends"

	require.Equal(t, a.Key(), b.Key())
	require.NotEqual(t, a.Key(), c.Key())
}

func TestGetOrComputeCachesWithinTTL(t *testing.T) {
	t.Parallel()

	c := New(16, 24*time.Hour)
	current := time.Now()
	c.now = func() time.Time { return current }

	calls := 0
	compute := func(ctx context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"insight":"x"}`), nil
	}

	payload, cached, err := c.GetOrCompute(context.Background(), "k", compute, false)
	require.NoError(t, err)
	require.False(t, cached)
	require.JSONEq(t, `{"insight":"x"}`, string(payload))

	// 23h into a 24h TTL: still served from cache.
	current = current.Add(23 * time.Hour)
	payload, cached, err = c.GetOrCompute(context.Background(), "k", compute, false)
	require.NoError(t, err)
	require.True(t, cached)
	require.JSONEq(t, `{"insight":"x"}`, string(payload))
	require.Equal(t, 1, calls)

	// Past the TTL: recomputed.
	current = current.Add(2 * time.Hour)
	_, cached, err = c.GetOrCompute(context.Background(), "k", compute, false)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, 2, calls)
}

func TestGetOrComputeForceRefreshBypassesCache(t *testing.T) {
	t.Parallel()

	c := New(16, time.Hour)

	calls := 0
	compute := func(ctx context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{}`), nil
	}

	_, _, err := c.GetOrCompute(context.Background(), "k", compute, false)
	require.NoError(t, err)

	_, cached, err := c.GetOrCompute(context.Background(), "k", compute, true)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, 2, calls)
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	c := New(16, time.Hour)

	calls := 0
	failing := func(ctx context.Context) (json.RawMessage, error) {
		calls++
		return nil, errors.New("model unavailable")
	}

	_, _, err := c.GetOrCompute(context.Background(), "k", failing, false)
	require.Error(t, err)
	require.Equal(t, 0, c.Len())

	_, _, err = c.GetOrCompute(context.Background(), "k", failing, false)
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestConcurrentCallersCoalesceToOneCompute(t *testing.T) {
	t.Parallel()

	c := New(16, time.Hour)

	var calls atomic.Int32
	compute := func(ctx context.Context) (json.RawMessage, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return json.RawMessage(`{"n":1}`), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, _, err := c.GetOrCompute(context.Background(), "shared", compute, false)
			require.NoError(t, err)
			require.JSONEq(t, `{"n":1}`, string(payload))
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	c := New(16, time.Hour)
	compute := func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}

	_, _, err := c.GetOrCompute(context.Background(), "a", compute, false)
	require.NoError(t, err)
	_, _, err = c.GetOrCompute(context.Background(), "b", compute, false)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	c.Invalidate("a")
	require.Equal(t, 1, c.Len())

	c.InvalidateAll()
	require.Equal(t, 0, c.Len())
}
