package viewstate

import (
	"sync"
	"time"
)

// DefaultSearchDelay is how long typing must pause before a search runs.
const DefaultSearchDelay = 300 * time.Millisecond

// Timer is the part of *time.Timer a Debouncer needs.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks; tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock uses time.AfterFunc.
var RealClock Clock = realClock{}

// Debouncer calls fn with the latest value once Trigger has not been
// called for delay.
type Debouncer struct {
	mu    sync.Mutex
	clock Clock
	delay time.Duration
	fn    func(string)
	timer Timer
	seq   uint64
}

func NewDebouncer(clock Clock, delay time.Duration, fn func(string)) *Debouncer {
	if clock == nil {
		clock = RealClock
	}
	return &Debouncer{clock: clock, delay: delay, fn: fn}
}

func (d *Debouncer) Trigger(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := seq == d.seq
		d.mu.Unlock()
		// A timer that fired while being replaced must not deliver a stale value.
		if current {
			d.fn(value)
		}
	})
}

// Cancel drops a pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
