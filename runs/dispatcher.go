package runs

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"hlsworker/events"
	"hlsworker/logger"
	"hlsworker/pipeline"
)

// ErrBusy is returned when a caller gave up waiting for a run slot.
var ErrBusy = errors.New("no run slot available")

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, ev events.TriggerEvent) pipeline.Outcome
}

// Dispatcher runs events synchronously with at most Limit runs at once.
type Dispatcher struct {
	runner  Runner
	tracker *Tracker
	sem     *semaphore.Weighted
	limit   int64
}

// NewDispatcher caps runner at limit concurrent runs. tracker may be nil.
func NewDispatcher(runner Runner, tracker *Tracker, limit int) *Dispatcher {
	if limit <= 0 {
		limit = 1
	}
	return &Dispatcher{
		runner:  runner,
		tracker: tracker,
		sem:     semaphore.NewWeighted(int64(limit)),
		limit:   int64(limit),
	}
}

// Limit returns the configured concurrency cap.
func (d *Dispatcher) Limit() int { return int(d.limit) }

// Dispatch waits for a slot while ctx is live, then runs ev to completion.
// Once a slot is acquired the run is detached from ctx cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, ev events.TriggerEvent) (pipeline.Outcome, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		logger.Warnf("dropping event for %s: %v", ev.Name, err)
		return pipeline.Outcome{}, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer d.sem.Release(1)

	out := d.runner.Run(context.WithoutCancel(ctx), ev)
	if d.tracker != nil {
		d.tracker.Finish(out)
	}
	return out, nil
}
