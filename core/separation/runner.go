package separation

import (
	"context"
	"time"

	"demixer/model"
)

// Runner is the scheduling layer: it re-invokes Advance at tick intervals
// until the job leaves Running. Advance itself never blocks, so the only
// suspension points are the tick boundaries.
type Runner struct {
	interval time.Duration
}

// NewRunner creates a runner. A non-positive interval defaults to 800ms,
// matching the latency the simulator is meant to imitate.
func NewRunner(interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	return &Runner{interval: interval}
}

// Drive ticks the controller until its job reaches a terminal state or the
// context is cancelled. Backend failures surface through the controller's
// update callback; Drive itself only reports context errors.
func (r *Runner) Drive(ctx context.Context, c *Controller) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// A backend failure lands the job in Failed; the state check
			// below ends the loop either way.
			_, _ = c.Advance(ctx)
			job := c.Job()
			if job == nil || job.State != model.JobRunning {
				return nil
			}
		}
	}
}
