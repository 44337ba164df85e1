package tracing

import (
	"sync"
	"time"
)

// A Tracer can collect task traces
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}

// A TimeTeller tells the current time in seconds.
type TimeTeller interface {
	CurrentTime() float64
}

// WallClock tells the wall-clock time elapsed since it was created.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a WallClock that starts now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// CurrentTime returns the seconds elapsed since the clock was created.
func (c *WallClock) CurrentTime() float64 {
	return time.Since(c.start).Seconds()
}

// ManualClock is a TimeTeller whose time only moves when told to.
type ManualClock struct {
	lock sync.Mutex
	now  float64
}

// CurrentTime returns the time last set.
func (c *ManualClock) CurrentTime() float64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.now
}

// Set moves the clock.
func (c *ManualClock) Set(now float64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.now = now
}
