package simulator

import "time"

// Battery models the traction battery as a bucket of energy.
type Battery struct {
	CapacityKWh float64
	// SOC is the state of charge in [0, 1].
	SOC float64
}

// Charge stores powerKW for dt without passing limit (a fraction of
// capacity) and returns the energy stored in kWh.
func (b *Battery) Charge(powerKW float64, dt time.Duration, limit float64) float64 {
	hours := dt.Hours()
	if powerKW <= 0 || hours <= 0 || b.CapacityKWh <= 0 {
		return 0
	}
	room := (limit - b.SOC) * b.CapacityKWh
	if room <= 0 {
		return 0
	}
	energy := powerKW * hours
	if energy > room {
		energy = room
	}
	b.SOC += energy / b.CapacityKWh
	if b.SOC > 1 {
		b.SOC = 1
	}
	return energy
}

// Level returns the state of charge as a whole percentage, rounded down the
// way the vehicle reports it.
func (b *Battery) Level() int { return int(b.SOC*100 + 1e-9) }
