package dispatch

import (
	"context"
	"sync"
)

// Job is one unit of detached work.
type Job struct {
	// Name identifies the job in logs (e.g. "notify:task:created").
	Name string

	// Run does the work. ctx carries the job timeout.
	Run func(ctx context.Context) error
}

// jobQueue is a bounded, thread-safe FIFO queue of jobs.
//
// Producers never block: Enqueue reports false when the queue is full or
// closed. Workers wait on the signal channel and drain with TryDequeue.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []Job
	limit  int
	closed bool
	signal chan struct{} // Signals job availability (buffered, size 1)
}

// newJobQueue creates an empty queue holding at most limit jobs.
func newJobQueue(limit int) *jobQueue {
	return &jobQueue{
		jobs:   make([]Job, 0, min(limit, 64)),
		limit:  limit,
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is full or closed.
func (q *jobQueue) Enqueue(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.jobs) >= q.limit {
		return false
	}
	q.jobs = append(q.jobs, j)
	q.notify()
	return true
}

// notify wakes one waiter. Caller holds q.mu.
func (q *jobQueue) notify() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes and returns the front job without blocking.
// Returns (Job{}, false) if the queue is empty.
func (q *jobQueue) TryDequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return Job{}, false
	}

	j := q.jobs[0]
	q.jobs[0] = Job{} // release the closure for GC
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
		// More work remains: pass the wakeup on to another worker.
		q.notify()
	}
	return j, true
}

// Wait returns a channel that signals when jobs may be available.
// The channel is closed when the queue is closed.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting jobs and wakes every waiter.
// Jobs already queued can still be dequeued.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *jobQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
