package control

import (
	"math"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/model"
)

const (
	// stableDecayAfter is the calm period before the buffer moves.
	stableDecayAfter = 60 * time.Second
	// decayStep is the buffer change per decay in kW.
	decayStep = 0.05
)

// Buffer is the adaptive offset added to grid power before control
// decisions. Import resets it to the curve value; calm export slowly moves it
// toward zero but never past half the curve value.
type Buffer struct {
	curve  model.ChargeCurve
	value  float64
	stable time.Duration
}

// NewBuffer starts at the curve value for batteryLevel.
func NewBuffer(curve model.ChargeCurve, batteryLevel int) *Buffer {
	return &Buffer{curve: curve, value: curve.BufferAt(batteryLevel)}
}

// Value returns the current buffer in kW.
func (b *Buffer) Value() float64 { return b.value }

// Stable returns the accumulated calm time.
func (b *Buffer) Stable() time.Duration { return b.stable }

// Reset restores the curve value for batteryLevel and clears the calm time.
func (b *Buffer) Reset(batteryLevel int) {
	b.value = b.curve.BufferAt(batteryLevel)
	b.stable = 0
}

// Disturb clears the calm time after an adjustment.
func (b *Buffer) Disturb() { b.stable = 0 }

// Settle accumulates d of calm and decays the buffer once the calm period
// is exceeded. It reports whether the buffer moved.
func (b *Buffer) Settle(d time.Duration, batteryLevel int) bool {
	b.stable += d
	floor := math.Abs(b.curve.BufferAt(batteryLevel)) / 2
	if b.stable <= stableDecayAfter || math.Abs(b.value) <= floor {
		return false
	}
	b.stable = 0
	next := math.Abs(b.value) - decayStep
	next = math.Round(next*100) / 100
	if next < floor {
		next = floor
	}
	b.value = math.Copysign(next, b.value)
	return true
}
