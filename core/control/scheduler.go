package control

import "time"

// Scheduler adapts the loop period: short while the charger is being
// adjusted, growing by the minimum on every quiet iteration.
type Scheduler struct {
	min     time.Duration
	max     time.Duration
	current time.Duration
}

// NewScheduler starts at min.
func NewScheduler(min, max time.Duration) *Scheduler {
	if max < min {
		max = min
	}
	return &Scheduler{min: min, max: max, current: min}
}

// Current returns the target loop duration.
func (s *Scheduler) Current() time.Duration { return s.current }

// Idle grows the loop duration after an iteration without adjustment.
func (s *Scheduler) Idle() {
	s.current += s.min
	if s.current > s.max {
		s.current = s.max
	}
}

// Reset returns to the minimum after an adjustment or on import.
func (s *Scheduler) Reset() { s.current = s.min }

// Sleep subtracts the time spent in the iteration body from the loop
// duration, never returning less than the minimum.
func (s *Scheduler) Sleep(body time.Duration) time.Duration {
	d := s.current - body
	if d < s.min {
		return s.min
	}
	return d
}
