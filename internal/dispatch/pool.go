// Package dispatch runs fire-and-forget work off the request path.
//
// A Pool owns a bounded job queue and a fixed set of workers. Submit never
// blocks the caller: when the queue is full or the pool is stopped the job
// is dropped and a warning is logged. Each job runs under its own context
// with a timeout, detached from whatever request produced it. Job errors
// and panics are logged and never propagate.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultWorkers is the number of workers when none is configured.
	DefaultWorkers = 4

	// DefaultQueueSize bounds the number of pending jobs.
	DefaultQueueSize = 1024

	// DefaultJobTimeout bounds a single job.
	DefaultJobTimeout = 10 * time.Second
)

// Pool is a bounded work queue drained by a fixed set of workers.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Start(): call once
//   - Stop(): safe to call more than once
type Pool struct {
	queue      *jobQueue
	workers    int
	jobTimeout time.Duration

	wg      sync.WaitGroup
	started atomic.Bool

	// Counters for health reporting and tests.
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Pool.
type Option func(*poolConfig)

type poolConfig struct {
	workers    int
	queueSize  int
	jobTimeout time.Duration
}

// WithWorkers sets the worker count. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize sets the queue bound. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithJobTimeout sets the per-job timeout. Values below 1ns are ignored.
func WithJobTimeout(d time.Duration) Option {
	return func(c *poolConfig) {
		if d > 0 {
			c.jobTimeout = d
		}
	}
}

// New creates a stopped pool. Call Start to begin processing.
func New(opts ...Option) *Pool {
	cfg := poolConfig{
		workers:    DefaultWorkers,
		queueSize:  DefaultQueueSize,
		jobTimeout: DefaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pool{
		queue:      newJobQueue(cfg.queueSize),
		workers:    cfg.workers,
		jobTimeout: cfg.jobTimeout,
	}
}

// Start launches the workers. They exit when ctx is cancelled or after Stop
// once the queue is drained. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	slog.Info("dispatch pool starting", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Submit queues a job. It never blocks; a full or stopped queue drops the
// job and reports false.
func (p *Pool) Submit(name string, run func(ctx context.Context) error) bool {
	if p.queue.Enqueue(Job{Name: name, Run: run}) {
		return true
	}
	p.dropped.Add(1)
	slog.Warn("job dropped", "job", name, "queue_len", p.queue.Len())
	return false
}

// run is one worker's loop.
func (p *Pool) run(ctx context.Context, id int) {
	for {
		job, ok := p.queue.TryDequeue()
		if ok {
			p.execute(job)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("dispatch worker stopping: context cancelled", "worker", id)
			return
		case <-p.queue.Wait():
			// The signal channel closes with the queue; exit once drained.
			if p.queue.isClosed() && p.queue.Len() == 0 {
				slog.Debug("dispatch worker stopping: queue closed", "worker", id)
				return
			}
		}
	}
}

// execute runs one job with its own timeout and contains any panic.
func (p *Pool) execute(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()

	start := time.Now()
	err := safeRun(ctx, job)
	if err != nil {
		p.failed.Add(1)
		logJobError(job, err, time.Since(start))
		return
	}
	p.completed.Add(1)
	slog.Debug("job completed", "job", job.Name, "duration", time.Since(start))
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if job.Run == nil {
		return fmt.Errorf("job has no function")
	}
	return job.Run(ctx)
}

// logJobError logs a failed job with enough context to investigate.
func logJobError(job Job, err error, elapsed time.Duration) {
	slog.Error("job failed",
		"job", job.Name,
		"error", err,
		"duration", elapsed,
	)
}

// Stop closes the queue and waits for the workers to drain it, or for ctx
// to expire. Jobs submitted after Stop are dropped.
func (p *Pool) Stop(ctx context.Context) error {
	p.queue.Close()
	if !p.started.Load() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("dispatch pool stopped",
			"completed", p.completed.Load(),
			"failed", p.failed.Load(),
			"dropped", p.dropped.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop dispatch pool: %w (pending %d)", ctx.Err(), p.queue.Len())
	}
}

// Stats is a point-in-time view of pool counters.
type Stats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Pending:   p.queue.Len(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}
