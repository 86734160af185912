package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ContentCurator/internal/cache"
	"ContentCurator/internal/connector"
	"ContentCurator/internal/domain"
)

func TestServiceTracksLastRunSummary(t *testing.T) {
	t.Parallel()

	src := &listConnector{name: "alpha", items: makeTitled("alpha", 2)}
	client := &scriptedClient{fallback: verdictJSON(0.9, true)}
	f := newFixture(t, []connector.Connector{src}, client, defaultRunConfig())

	svc := NewService(nil, f.pipeline, cache.New(8, time.Hour), nil)

	_, ok := svc.GetLastRunSummary()
	require.False(t, ok)

	summary := svc.TriggerRunNow(context.Background())
	require.Equal(t, domain.RunCompleted, summary.Status)

	last, ok := svc.GetLastRunSummary()
	require.True(t, ok)
	require.Equal(t, summary.RunID, last.RunID)
	require.Equal(t, 2, last.Counts.Admitted)
}

func TestServiceAnalyzeUsesCache(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, nil, cache.New(8, time.Hour), nil)
	req := cache.Request{Topic: "tech", Model: "m", View: "overview"}

	calls := 0
	compute := func(ctx context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"trend":"up"}`), nil
	}

	payload, cached, err := svc.Analyze(context.Background(), req, compute, false)
	require.NoError(t, err)
	require.False(t, cached)
	require.JSONEq(t, `{"trend":"up"}`, string(payload))

	_, cached, err = svc.Analyze(context.Background(), req, compute, false)
	require.NoError(t, err)
	require.True(t, cached)
	require.Equal(t, 1, calls)

	svc.InvalidateAnalysis(req)
	_, cached, err = svc.Analyze(context.Background(), req, compute, false)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, 2, calls)
}
