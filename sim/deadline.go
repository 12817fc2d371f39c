package sim

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome is what the deadline governor hands to the caller. Results is the
// sealed snapshot; results arriving later are diverted to the collection's
// discard sink and never show up here.
type Outcome struct {
	Results     []Result
	Missing     []string
	TimedOut    bool // the timer fired before every service resolved
	Interrupted bool // the caller's context ended first
}

// Err returns ErrDeadlineExceeded or ErrInterruptedWait for partial outcomes,
// nil for complete ones. A timed-out outcome is still a valid answer.
func (o Outcome) Err() error {
	switch {
	case o.Interrupted:
		return ErrInterruptedWait
	case o.TimedOut:
		return ErrDeadlineExceeded
	}
	return nil
}

// GovernorOptions tunes WithDeadline.
type GovernorOptions struct {
	// CancelOnTimeout cancels the aggregation's context when the timer wins.
	// Otherwise in-flight calls keep running in the background.
	CancelOnTimeout bool
}

// WithDeadline starts timeout on timers and run at the same instant and
// returns whichever finishes first. run must fill coll; it receives a context
// that is cancelled once it is no longer awaited (immediately on timeout when
// CancelOnTimeout is set, otherwise only after run itself returns).
// timeout <= 0 means no deadline.
func WithDeadline(ctx context.Context, timers TimerService, timeout time.Duration, coll *ResultCollection,
	run func(ctx context.Context), opts GovernorOptions) Outcome {
	fired, stop := timers.After(timeout)
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(runCtx)
	}()

	var outcome Outcome
	select {
	case <-done:
	case <-fired:
		outcome.TimedOut = true
		logrus.Infof("timed out after %v", timeout)
	case <-ctx.Done():
		outcome.Interrupted = true
		logrus.Infof("search interrupted: %v", ctx.Err())
	}

	outcome.Results = coll.Seal()
	outcome.Missing = coll.Missing()

	if opts.CancelOnTimeout || outcome.Interrupted {
		cancel()
	} else {
		go func() {
			<-done
			cancel()
		}()
	}
	return outcome
}
