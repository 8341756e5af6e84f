package transcription

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/g150446/whisper-server/pkg/logger"
)

type stubModel struct {
	closed atomic.Bool
}

func (m *stubModel) Transcribe(ctx context.Context, path string) (*Result, error) {
	return &Result{}, nil
}

func (m *stubModel) Close() error {
	m.closed.Store(true)
	return nil
}

// TestBackoffDelaySchedule pins the retry wait schedule: nothing before the
// first attempt, then base * 2^(n-2).
func TestBackoffDelaySchedule(t *testing.T) {
	base := 5 * time.Second
	require.Equal(t, time.Duration(0), backoffDelay(1, base))
	require.Equal(t, 5*time.Second, backoffDelay(2, base))
	require.Equal(t, 10*time.Second, backoffDelay(3, base))
	require.Equal(t, 20*time.Second, backoffDelay(4, base))
}

func TestLoaderExhaustsRetries(t *testing.T) {
	var attempts int32
	load := func(ctx context.Context) (Model, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network unreachable")
	}

	l := NewLoader(load, 3, 0, logger.NewNop())
	l.Start(context.Background())
	<-l.Done()

	require.EqualValues(t, 3, atomic.LoadInt32(&attempts))

	snapshot := l.Snapshot()
	require.Equal(t, StatusFailed, snapshot.Status)
	require.False(t, snapshot.ModelLoaded)
	require.Contains(t, snapshot.LastError, "network unreachable")

	_, ok := l.Model()
	require.False(t, ok)
	require.Error(t, l.Err())
}

func TestLoaderSucceedsAfterTransientFailure(t *testing.T) {
	model := &stubModel{}
	var attempts int32
	load := func(ctx context.Context) (Model, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return nil, errors.New("connection reset")
		}
		return model, nil
	}

	l := NewLoader(load, 3, 0, logger.NewNop())
	l.Start(context.Background())
	<-l.Done()

	require.EqualValues(t, 2, atomic.LoadInt32(&attempts))

	snapshot := l.Snapshot()
	require.Equal(t, StatusLoaded, snapshot.Status)
	require.True(t, snapshot.ModelLoaded)
	require.Empty(t, snapshot.LastError)

	installed, ok := l.Model()
	require.True(t, ok)
	require.Same(t, model, installed)
	require.NoError(t, l.Err())
}

// TestLoaderInterruptedDuringBackoff cancels the context while the loader is
// waiting between attempts. The loader must land in failed with the
// interruption sentinel, not hang in loading.
func TestLoaderInterruptedDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attemptDone := make(chan struct{}, 2)
	load := func(ctx context.Context) (Model, error) {
		attemptDone <- struct{}{}
		return nil, errors.New("boom")
	}

	l := NewLoader(load, 2, time.Hour, logger.NewNop())
	l.Start(ctx)

	<-attemptDone
	cancel()
	<-l.Done()

	require.ErrorIs(t, l.Err(), ErrLoadInterrupted)

	snapshot := l.Snapshot()
	require.Equal(t, StatusFailed, snapshot.Status)
	require.False(t, snapshot.ModelLoaded)
	require.Contains(t, snapshot.LastError, "interrupted")
}

func TestLoaderInterruptedDuringAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	load := func(ctx context.Context) (Model, error) {
		cancel()
		return nil, errors.New("read aborted")
	}

	l := NewLoader(load, 3, 0, logger.NewNop())
	l.Start(ctx)
	<-l.Done()

	require.ErrorIs(t, l.Err(), ErrLoadInterrupted)
	require.Equal(t, StatusFailed, l.Snapshot().Status)
}

func TestLoaderCloseReleasesModel(t *testing.T) {
	model := &stubModel{}
	l := NewLoader(func(ctx context.Context) (Model, error) { return model, nil }, 1, 0, logger.NewNop())
	l.Start(context.Background())
	<-l.Done()

	require.NoError(t, l.Close())
	require.True(t, model.closed.Load())

	_, ok := l.Model()
	require.False(t, ok)
}

func TestSnapshotBeforeStart(t *testing.T) {
	l := NewLoader(func(ctx context.Context) (Model, error) { return nil, nil }, 1, 0, logger.NewNop())

	snapshot := l.Snapshot()
	require.Equal(t, StatusNotStarted, snapshot.Status)
	require.False(t, snapshot.ModelLoaded)
	require.Empty(t, snapshot.LastError)
}
