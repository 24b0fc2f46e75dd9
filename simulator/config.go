// Package simulator provides a simulated vehicle and site for dry runs of
// the control loop.
package simulator

// Step changes solar generation once AfterSeconds of simulated time passed.
type Step struct {
	AfterSeconds int     `json:"after_seconds"`
	SolarKW      float64 `json:"solar_kw"`
}

// Config describes the simulated site and vehicle.
type Config struct {
	SolarKW float64 `json:"solar_kw"`
	// Profile overrides SolarKW over time. Steps are applied in order.
	Profile []Step  `json:"profile"`
	LoadKW  float64 `json:"load_kw"`
	// NoiseKW is the standard deviation added to solar readings.
	NoiseKW float64 `json:"noise_kw"`
	Seed    uint64  `json:"seed"`

	CapacityKWh  float64 `json:"capacity_kwh"`
	BatteryLevel int     `json:"battery_level"`
	ChargeLimit  int     `json:"charge_limit"`
	MaxAmps      int     `json:"max_amps"`
	Voltage      int     `json:"voltage"`
	Phases       int     `json:"phases"`
	// MilesPerKWh converts stored energy into rated range.
	MilesPerKWh float64 `json:"miles_per_kwh"`
	// Speed scales simulated time against wall time.
	Speed float64 `json:"speed"`
}

// SetDefaults describes a sunny afternoon and a half charged car.
func (c *Config) SetDefaults() {
	if c.SolarKW == 0 && len(c.Profile) == 0 {
		c.SolarKW = 5
	}
	if c.LoadKW == 0 {
		c.LoadKW = 0.6
	}
	if c.CapacityKWh <= 0 {
		c.CapacityKWh = 75
	}
	if c.BatteryLevel <= 0 {
		c.BatteryLevel = 50
	}
	if c.ChargeLimit <= 0 {
		c.ChargeLimit = 80
	}
	if c.MaxAmps <= 0 {
		c.MaxAmps = 32
	}
	if c.Voltage <= 0 {
		c.Voltage = 230
	}
	if c.Phases <= 0 {
		c.Phases = 1
	}
	if c.MilesPerKWh <= 0 {
		c.MilesPerKWh = 4
	}
	if c.Speed <= 0 {
		c.Speed = 1
	}
}
