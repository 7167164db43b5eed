package chat

import "time"

type Timer interface {
	Stop() bool
}

// Clock abstracts time so timers can be driven deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// loopClock runs timer callbacks on the session loop instead of the timer
// goroutine. Stop is only ever called from the loop, so the stopped flag
// needs no lock.
type loopClock struct {
	base Clock
	post func(func()) bool
}

type loopTimer struct {
	inner   Timer
	stopped bool
}

func (c loopClock) Now() time.Time { return c.base.Now() }

func (c loopClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{}
	t.inner = c.base.AfterFunc(d, func() {
		c.post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			f()
		})
	})
	return t
}

func (t *loopTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.inner.Stop()
	return true
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
