package simulator

import (
	"sync"
	"time"
)

// Clock runs simulated time Speed times faster than the wall clock. It
// satisfies control.Clock.
type Clock struct {
	speed  float64
	origin time.Time
	wall   func() time.Time

	mu     sync.Mutex
	offset time.Duration
}

// NewClock starts simulated time at the current wall time.
func NewClock(speed float64) *Clock {
	if speed <= 0 {
		speed = 1
	}
	return &Clock{speed: speed, origin: time.Now(), wall: time.Now}
}

// Now returns the simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Duration(float64(c.wall().Sub(c.origin)) * c.speed)
	return c.origin.Add(elapsed + c.offset)
}

// Advance jumps simulated time forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.offset += d
	c.mu.Unlock()
}

// After fires once d of simulated time has passed.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	time.AfterFunc(time.Duration(float64(d)/c.speed), func() { ch <- c.Now() })
	return ch
}
