package taskqueue_test

import (
	"context"
	"errors"
	"spacechat/backend/internal/taskqueue"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() taskqueue.Policy {
	return taskqueue.Policy{Timeout: time.Second, MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

// TestQueue_CompletesInSubmissionOrder enqueues tasks whose latency decreases
// with submission order and checks their side effects land in submission order.
func TestQueue_CompletesInSubmissionOrder(t *testing.T) {
	q := taskqueue.New(fastPolicy())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	const n = 8
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		q.Enqueue("task", func(ctx context.Context) error {
			time.Sleep(time.Duration(n-i) * 2 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, func(taskqueue.Result) { wg.Done() })
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
	require.NoError(t, q.Close(context.Background()))
}

// TestQueue_NeverRunsTwoTasksAtOnce checks that enqueueing from many
// goroutines never starts a second worker.
func TestQueue_NeverRunsTwoTasksAtOnce(t *testing.T) {
	q := taskqueue.New(fastPolicy())

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go q.Enqueue("concurrent", func(ctx context.Context) error {
			cur := atomic.AddInt32(&active, 1)
			for {
				prev := atomic.LoadInt32(&maxActive)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		}, func(taskqueue.Result) { wg.Done() })
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	q := taskqueue.New(fastPolicy())

	calls := 0
	done := make(chan taskqueue.Result, 1)
	q.Enqueue("flaky", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("network down")
		}
		return nil
	}, func(r taskqueue.Result) { done <- r })

	res := <-done
	assert.True(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "flaky", res.Name)
}

func TestQueue_ReportsTerminalFailure(t *testing.T) {
	q := taskqueue.New(fastPolicy())

	boom := errors.New("boom")
	done := make(chan taskqueue.Result, 1)
	q.Enqueue("always-fails", func(ctx context.Context) error { return boom }, func(r taskqueue.Result) { done <- r })

	res := <-done
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 3, res.Attempts)
}

func TestQueue_PermanentErrorsAreNotRetried(t *testing.T) {
	q := taskqueue.New(fastPolicy())

	invalid := errors.New("invalid input")
	done := make(chan taskqueue.Result, 1)
	q.Enqueue("invalid", func(ctx context.Context) error { return taskqueue.Permanent(invalid) }, func(r taskqueue.Result) { done <- r })

	res := <-done
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, taskqueue.IsPermanent(res.Err))
	assert.ErrorIs(t, res.Err, invalid)
}

// TestQueue_TimeoutUnblocksStuckTask makes sure a hung request does not stall
// the tasks queued behind it.
func TestQueue_TimeoutUnblocksStuckTask(t *testing.T) {
	q := taskqueue.New(taskqueue.Policy{Timeout: 10 * time.Millisecond, MaxAttempts: 1})

	results := make(chan taskqueue.Result, 2)
	q.Enqueue("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, func(r taskqueue.Result) { results <- r })
	q.Enqueue("after", func(ctx context.Context) error { return nil }, func(r taskqueue.Result) { results <- r })

	first := <-results
	second := <-results
	assert.ErrorIs(t, first.Err, context.DeadlineExceeded)
	assert.Equal(t, "after", second.Name)
	assert.True(t, second.OK())
}

func TestQueue_PanicIsContained(t *testing.T) {
	q := taskqueue.New(fastPolicy())

	results := make(chan taskqueue.Result, 2)
	q.Enqueue("panics", func(ctx context.Context) error { panic("bad") }, func(r taskqueue.Result) { results <- r })
	q.Enqueue("fine", func(ctx context.Context) error { return nil }, func(r taskqueue.Result) { results <- r })

	assert.Error(t, (<-results).Err)
	assert.True(t, (<-results).OK())
}

func TestQueue_CloseRejectsNewTasks(t *testing.T) {
	q := taskqueue.New(fastPolicy())
	require.NoError(t, q.Close(context.Background()))

	var got taskqueue.Result
	q.Enqueue("late", func(ctx context.Context) error { return nil }, func(r taskqueue.Result) { got = r })

	assert.ErrorIs(t, got.Err, taskqueue.ErrClosed)
}

func TestQueue_CloseWaitsForPendingWork(t *testing.T) {
	q := taskqueue.New(fastPolicy())

	var ran int32
	for i := 0; i < 3; i++ {
		q.Enqueue("work", func(ctx context.Context) error {
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&ran, 1)
			return nil
		}, nil)
	}

	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
}

func TestPolicy_Backoff(t *testing.T) {
	p := taskqueue.Policy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Duration(0), taskqueue.Policy{}.Backoff(2))
}
