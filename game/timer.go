package game

import "time"

// turnTimer counts a turn down one interval at a time. It is owned by a single
// room goroutine and is not safe for concurrent use.
type turnTimer struct {
	creator   PeriodicTickerCreator
	interval  time.Duration
	duration  int
	remaining int
	c         <-chan time.Time
	stop      func()
}

func newTurnTimer(creator PeriodicTickerCreator, interval time.Duration, duration int) *turnTimer {
	return &turnTimer{creator: creator, interval: interval, duration: duration}
}

// Start resets the countdown, replacing any ticker already running.
func (t *turnTimer) Start() {
	t.Stop()
	t.remaining = t.duration
	t.c, t.stop = t.creator.Create(t.interval)
}

func (t *turnTimer) Stop() {
	if t.stop != nil {
		t.stop()
	}
	t.c = nil
	t.stop = nil
}

func (t *turnTimer) Running() bool {
	return t.c != nil
}

// C is nil while stopped, so selecting on it blocks.
func (t *turnTimer) C() <-chan time.Time {
	return t.c
}

// Tick consumes one interval and reports whether the turn ran out.
func (t *turnTimer) Tick() (remaining int, expired bool) {
	if t.remaining > 0 {
		t.remaining--
	}
	return t.remaining, t.remaining == 0
}
