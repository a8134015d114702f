package scheduler

import (
	"context"
	"errors"
	"time"
)

// ErrStop may be returned by a Runner to end the scheduling loop from
// inside a tick. The scheduler exits cleanly and records no failure.
var ErrStop = errors.New("scheduler: stop requested by runner")

// Scheduler defines the interface for poll schedulers
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	Stop() error

	// Trigger requests an early tick
	Trigger()

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	Triggered      int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Interval specifies the duration between ticks
	Interval time.Duration

	// Immediate runs one tick as soon as the loop starts
	Immediate bool
}

// Runner is what the scheduler calls on every tick
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

// Run calls f(ctx)
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}
