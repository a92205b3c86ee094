package pool

import (
	"sync"
	"time"
)

var (
	timerPool = sync.Pool{}
)

// GetTimer gets a timer from the pool and resets it to the given duration.
func GetTimer(d time.Duration) *time.Timer {
	timer, ok := timerPool.Get().(*time.Timer)
	if !ok {
		return time.NewTimer(d)
	}
	StopTimer(timer)
	timer.Reset(d)
	return timer
}

// ReleaseTimer stops the timer and returns it to the pool.
func ReleaseTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	StopTimer(timer)
	timerPool.Put(timer)
}

// NewStoppedTimer returns a timer that will not fire until it is reset.
func NewStoppedTimer() *time.Timer {
	timer := time.NewTimer(time.Hour)
	StopTimer(timer)
	return timer
}

// StopTimer stops the timer and drops a value that fired but was never received.
func StopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// ResetTimerAt rearms the timer to fire at the absolute instant at.
// An instant in the past fires immediately.
func ResetTimerAt(timer *time.Timer, at time.Time) {
	StopTimer(timer)
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}
