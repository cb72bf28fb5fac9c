package jobs

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

type outcome struct {
	job Job
	err error
}

func collect() (DoneFunc, <-chan outcome) {
	ch := make(chan outcome, 16)
	return func(j Job, err error) { ch <- outcome{job: j, err: err} }, ch
}

func waitOutcome(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
		return outcome{}
	}
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	onDone, done := collect()
	q := NewQueue("test", func(ctx context.Context, j Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("flaky")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond, OnDone: onDone})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j-1"}))
	o := waitOutcome(t, done)
	assert.NoError(t, o.err)
	assert.Equal(t, 2, o.job.Attempt)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	onDone, done := collect()
	q := NewQueue("test", func(ctx context.Context, j Job) error {
		return errors.New("down")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond, OnDone: onDone})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j-1"}))
	o := waitOutcome(t, done)
	assert.EqualError(t, o.err, "down")
	assert.Equal(t, 2, o.job.Attempt)
}

func TestQueuePermanentErrorSkipsRetry(t *testing.T) {
	var calls int32
	onDone, done := collect()
	q := NewQueue("test", func(ctx context.Context, j Job) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("rejected"))
	}, QueueConfig{MaxRetries: 5, RetryDelay: time.Millisecond, OnDone: onDone})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j-1"}))
	o := waitOutcome(t, done)
	assert.True(t, IsPermanent(o.err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestQueueStopReportsUnfinishedJobs(t *testing.T) {
	onDone, done := collect()
	running := make(chan struct{})
	var once sync.Once
	q := NewQueue("test", func(ctx context.Context, j Job) error {
		once.Do(func() { close(running) })
		<-ctx.Done()
		return ctx.Err()
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Hour, OnDone: onDone})
	q.Start(context.Background())

	for _, id := range []string{"j-1", "j-2", "j-3"} {
		require.NoError(t, q.Enqueue(Job{ID: id}))
	}
	select {
	case <-running:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}
	q.Stop()

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		o := waitOutcome(t, done)
		assert.ErrorIs(t, o.err, context.Canceled)
		seen[o.job.ID] = true
	}
	assert.Len(t, seen, 3)
	assert.Error(t, q.Enqueue(Job{ID: "late"}))
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, j Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "x"}))
}

func TestQueueProcessesConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(4)
	q := NewQueue("pool", func(ctx context.Context, j Job) error {
		wg.Done()
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "j"}))
	}
	finished := make(chan struct{})
	go func() { wg.Wait(); close(finished) }()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs not processed")
	}
}
