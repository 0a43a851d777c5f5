package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPool(t *testing.T, opts ...Option) *Pool {
	t.Helper()
	p := New(opts...)
	p.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})
	return p
}

func TestPool_RunsJobs(t *testing.T) {
	p := startPool(t, WithWorkers(3))

	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.True(t, p.Submit("count", func(context.Context) error {
			defer wg.Done()
			n.Add(1)
			return nil
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(100), n.Load())
}

func TestPool_StopDrainsQueue(t *testing.T) {
	p := New(WithWorkers(1))
	var n atomic.Int64
	for i := 0; i < 10; i++ {
		p.Submit("count", func(context.Context) error {
			n.Add(1)
			return nil
		})
	}
	p.Start(context.Background())

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int64(10), n.Load())
	assert.Equal(t, int64(10), p.Stats().Completed)
}

func TestPool_SubmitAfterStopDrops(t *testing.T) {
	p := New()
	p.Start(context.Background())
	require.NoError(t, p.Stop(context.Background()))

	assert.False(t, p.Submit("late", func(context.Context) error { return nil }))
	assert.Equal(t, int64(1), p.Stats().Dropped)
}

func TestPool_FullQueueDropsWithoutBlocking(t *testing.T) {
	p := startPool(t, WithWorkers(1), WithQueueSize(1))

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit("blocker", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	assert.True(t, p.Submit("queued", func(context.Context) error { return nil }))

	done := make(chan bool)
	go func() { done <- p.Submit("overflow", func(context.Context) error { return nil }) }()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
	close(release)
}

func TestPool_ErrorsAndPanicsAreContained(t *testing.T) {
	p := startPool(t, WithWorkers(1))

	var wg sync.WaitGroup
	wg.Add(3)
	p.Submit("fails", func(context.Context) error {
		defer wg.Done()
		return errors.New("sink offline")
	})
	p.Submit("panics", func(context.Context) error {
		defer wg.Done()
		panic("boom")
	})
	p.Submit("ok", func(context.Context) error {
		defer wg.Done()
		return nil
	})
	wg.Wait()

	require.Eventually(t, func() bool {
		s := p.Stats()
		return s.Failed == 2 && s.Completed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPool_JobTimeout(t *testing.T) {
	p := startPool(t, WithJobTimeout(20*time.Millisecond))

	errCh := make(chan error, 1)
	p.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	})

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("job context never expired")
	}
}

func TestPool_JobContextIsDetachedFromStart(t *testing.T) {
	p := New(WithWorkers(1))
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	errCh := make(chan error, 1)
	p.Submit("check", func(jobCtx context.Context) error {
		errCh <- jobCtx.Err()
		return nil
	})
	assert.NoError(t, <-errCh)

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	assert.NoError(t, p.Stop(stopCtx))
}

func TestPool_StopTimesOut(t *testing.T) {
	p := New(WithWorkers(1))
	p.Start(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit("stuck", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestPool_StopWithoutStart(t *testing.T) {
	p := New()
	assert.NoError(t, p.Stop(context.Background()))
}

func TestInline_RunsJobSynchronously(t *testing.T) {
	var ran bool
	ok := Inline{}.Submit("inline", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		ran = true
		return nil
	})

	assert.True(t, ok)
	assert.True(t, ran)
}

func TestInline_ContainsPanicAndError(t *testing.T) {
	in := Inline{Timeout: time.Second}

	assert.NotPanics(t, func() {
		in.Submit("boom", func(context.Context) error { panic("boom") })
	})
	assert.True(t, in.Submit("fails", func(context.Context) error { return errors.New("nope") }))
}
