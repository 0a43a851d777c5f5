package dispatch

import (
	"context"
	"time"
)

// Inline runs each submitted job immediately on the caller's goroutine,
// under the same detached timeout and panic containment as a Pool worker.
//
// Used where the order of side effects must be reproducible, such as
// scripted scenarios.
type Inline struct {
	Timeout time.Duration // Zero means DefaultJobTimeout
}

// Submit runs the job and always reports it as accepted.
func (in Inline) Submit(name string, run func(ctx context.Context) error) bool {
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	job := Job{Name: name, Run: run}
	start := time.Now()
	if err := safeRun(ctx, job); err != nil {
		logJobError(job, err, time.Since(start))
	}
	return true
}
