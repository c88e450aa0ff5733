// Package clock supplies the two time sources the scheduler runs on.
package clock

import "time"

// Clock separates wall time from monotonic time. Cron schedules are
// evaluated against wall seconds while interval schedules use monotonic
// seconds, so a wall-clock jump never shifts an interval deadline.
type Clock interface {
	// WallNow returns the current unix time in whole seconds.
	WallNow() int64
	// MonoNow returns seconds elapsed on a monotonic clock.
	MonoNow() float64
}

type systemClock struct {
	start time.Time
}

// New returns a Clock backed by the system time sources.
func New() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) WallNow() int64 {
	return time.Now().Unix()
}

func (c *systemClock) MonoNow() float64 {
	// time.Since reads the monotonic reading carried inside time.Time.
	return time.Since(c.start).Seconds()
}
