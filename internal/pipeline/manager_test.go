package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestEnsureStartsNewRun(t *testing.T) {
	m := NewManager(zerolog.Nop())

	started := make(chan struct{})
	run, isNew := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		close(started)
		return nil
	})
	require.True(t, isNew)
	require.NotNil(t, run)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("work never started")
	}
	waitDone(t, run)
	assert.NoError(t, run.Error())
}

func TestEnsureDeduplicatesInFlightRun(t *testing.T) {
	m := NewManager(zerolog.Nop())

	release := make(chan struct{})
	first, isNew := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.True(t, isNew)

	second, isNew := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		t.Error("duplicate work must not run")
		return nil
	})
	assert.False(t, isNew)
	assert.Same(t, first, second)

	close(release)
	waitDone(t, first)
}

func TestEnsureCleansUpAfterCompletion(t *testing.T) {
	m := NewManager(zerolog.Nop())

	run, _ := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		return nil
	})
	waitDone(t, run)

	// The finished run is removed from the map, so a fresh Ensure starts
	// new work.
	assert.Eventually(t, func() bool {
		return m.Get("vid-1") == nil
	}, 5*time.Second, 10*time.Millisecond)

	again, isNew := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		return nil
	})
	assert.True(t, isNew)
	waitDone(t, again)
}

func TestEnsureRefusesCanceledContext(t *testing.T) {
	m := NewManager(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, isNew := m.Ensure(ctx, "vid-1", func(ctx context.Context) error {
		t.Error("work must not start")
		return nil
	})
	assert.Nil(t, run)
	assert.False(t, isNew)
}

func TestRunRecordsWorkError(t *testing.T) {
	m := NewManager(zerolog.Nop())

	wantErr := errors.New("transcode blew up")
	run, _ := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		return wantErr
	})
	waitDone(t, run)
	assert.ErrorIs(t, run.Error(), wantErr)
}

func TestRunRecoversFromPanic(t *testing.T) {
	m := NewManager(zerolog.Nop())

	run, _ := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		panic("boom")
	})
	waitDone(t, run)
	require.Error(t, run.Error())
	assert.Contains(t, run.Error().Error(), "panic")
}

func TestRunWaitReturnsWorkError(t *testing.T) {
	m := NewManager(zerolog.Nop())

	wantErr := errors.New("no space left on device")
	run, _ := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		return wantErr
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorIs(t, run.Wait(ctx), wantErr)
}

func TestRunWaitHonorsContext(t *testing.T) {
	m := NewManager(zerolog.Nop())

	release := make(chan struct{})
	run, _ := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, run.Wait(ctx), context.Canceled)

	close(release)
	waitDone(t, run)
}

func TestCancelAllStopsRuns(t *testing.T) {
	m := NewManager(zerolog.Nop())

	run, _ := m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	m.CancelAll()
	waitDone(t, run)
	assert.ErrorIs(t, run.Error(), context.Canceled)
}

func TestWaitAllReturnsWhenRunsFinish(t *testing.T) {
	m := NewManager(zerolog.Nop())

	release := make(chan struct{})
	m.Ensure(context.Background(), "vid-1", func(ctx context.Context) error {
		<-release
		return nil
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.WaitAll(ctx)
	assert.NoError(t, ctx.Err())
}
