package sim

import "time"

// TimerService schedules deadline timers. Implementations must not share
// capacity with the WorkerPool: a timer queued behind exhausted pool slots
// could never fire and would defeat the deadline it enforces.
type TimerService interface {
	// After returns a channel closed once d has elapsed and a stop func that
	// reports whether it prevented the firing. d <= 0 never fires.
	After(d time.Duration) (<-chan struct{}, func() bool)
}

// RuntimeTimers is the default TimerService, backed by Go runtime timers.
type RuntimeTimers struct{}

func (RuntimeTimers) After(d time.Duration) (<-chan struct{}, func() bool) {
	fired := make(chan struct{})
	if d <= 0 {
		return fired, func() bool { return false }
	}
	t := time.AfterFunc(d, func() { close(fired) })
	return fired, t.Stop
}
