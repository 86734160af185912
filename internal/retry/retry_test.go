package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Once(time.Millisecond).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	wantErr := errors.New("still broken")
	err := Policy{MaxAttempts: 3, Backoff: time.Millisecond}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 3, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	wantErr := errors.New("bad request")
	err := Once(time.Millisecond).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Fail(wantErr)
	})

	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, calls)
}

func TestDoRespectsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{MaxAttempts: 5, Backoff: time.Hour}.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
