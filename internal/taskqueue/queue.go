// Package taskqueue runs independently submitted operations one at a time,
// in submission order, so that their network round-trips complete in the
// order they were requested.
package taskqueue

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrClosed is reported for tasks enqueued after Close.
var ErrClosed = errors.New("taskqueue: queue closed")

// Task is one queued operation. It must honour ctx cancellation.
type Task func(ctx context.Context) error

// Result is the terminal outcome of a task.
type Result struct {
	Name     string
	Attempts int
	Err      error
	Duration time.Duration
}

// OK reports whether the task eventually succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Policy bounds how long a single attempt may take and how often it is retried.
type Policy struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Backoff returns the delay before retry number attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseBackoff <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseBackoff * time.Duration(1<<uint(attempt-1))
	if p.MaxBackoff > 0 && (delay > p.MaxBackoff || delay <= 0) {
		delay = p.MaxBackoff
	}
	return delay
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type job struct {
	name string
	task Task
	done func(Result)
}

// Queue is a FIFO of tasks processed by at most one worker goroutine. The
// worker only exists while there is pending work.
type Queue struct {
	mu      sync.Mutex
	pending []job
	running bool
	closed  bool
	idle    chan struct{}

	policy Policy
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an empty queue.
func New(policy Policy) *Queue {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Queue{policy: policy, ctx: ctx, cancel: cancel, idle: idle}
}

// Enqueue appends a task and returns immediately. done, if not nil, is called
// from the worker goroutine with the task's terminal result.
func (q *Queue) Enqueue(name string, task Task, done func(Result)) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		if done != nil {
			done(Result{Name: name, Err: ErrClosed})
		}
		return
	}
	q.pending = append(q.pending, job{name: name, task: task, done: done})
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	q.mu.Unlock()

	go q.process()
}

// Len returns the number of tasks waiting to run, excluding the running one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting tasks and waits for the queued ones to finish, or for
// ctx to expire, in which case the running attempt is cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-idle
		return ctx.Err()
	}
}

func (q *Queue) process() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending[0] = job{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		res := q.run(next)
		if res.Err != nil {
			log.Printf("WARN: queued task %s failed after %d attempt(s): %v", res.Name, res.Attempts, res.Err)
		}
		if next.done != nil {
			next.done(res)
		}
	}
}

func (q *Queue) run(j job) (res Result) {
	start := time.Now()
	res.Name = j.name
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: queued task %s panicked: %v", j.name, r)
			res.Err = Permanent(errors.New("task panicked"))
		}
		res.Duration = time.Since(start)
	}()

	for attempt := 1; attempt <= q.policy.MaxAttempts; attempt++ {
		res.Attempts = attempt
		res.Err = q.attempt(j.task)
		if res.Err == nil || IsPermanent(res.Err) || q.ctx.Err() != nil {
			return res
		}
		if attempt == q.policy.MaxAttempts {
			break
		}
		select {
		case <-q.ctx.Done():
			return res
		case <-time.After(q.policy.Backoff(attempt)):
		}
	}
	return res
}

func (q *Queue) attempt(task Task) error {
	ctx := q.ctx
	if q.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.policy.Timeout)
		defer cancel()
	}
	return task(ctx)
}
