package control

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how a session treats safety stops.
type Mode int

const (
	// ModeNormal applies every safety stop.
	ModeNormal Mode = iota
	// ModePriority is used while a trip needs charge; its stops follow the
	// configured StopPolicy.
	ModePriority
)

func (m Mode) String() string {
	if m == ModePriority {
		return "priority"
	}
	return "normal"
}

// StopPolicy decides whether priority sessions may stop charging.
type StopPolicy int

const (
	// PolicySuppress never stops charging in priority mode.
	PolicySuppress StopPolicy = iota
	// PolicyEnforce applies grid draw stops in priority mode too.
	PolicyEnforce
)

// ParseStopPolicy maps "suppress" and "enforce" onto a StopPolicy. An empty
// string selects PolicySuppress.
func ParseStopPolicy(s string) (StopPolicy, error) {
	switch strings.ToLower(s) {
	case "", "suppress":
		return PolicySuppress, nil
	case "enforce":
		return PolicyEnforce, nil
	}
	return PolicySuppress, fmt.Errorf("unknown stop policy %q", s)
}

// Settings tunes the control loop. Power values are in kW unless noted.
type Settings struct {
	MinLoopSleep          time.Duration
	MaxLoopSleep          time.Duration
	GridMaxDraw           float64
	GridMaxSustainedDraw  float64
	SustainedDrawDuration time.Duration
	NotChargingDuration   time.Duration
	RampUpPercentage      float64
	RampDownPercentage    float64
	MinimumChargingAmps   int
	MinimumStateOfCharge  int
	// MinimumPowerToStartCharging is in W. Zero derives it from the
	// minimum charging amps.
	MinimumPowerToStartCharging float64
	// NominalVoltage replaces implausible voltages reported by an idle charger.
	NominalVoltage     int
	StatsInterval      time.Duration
	PriorityStopPolicy StopPolicy
}

// DefaultSettings mirrors the defaults applied by the configuration layer.
func DefaultSettings() Settings {
	return Settings{
		MinLoopSleep:          10 * time.Second,
		MaxLoopSleep:          120 * time.Second,
		GridMaxDraw:           5,
		GridMaxSustainedDraw:  1,
		SustainedDrawDuration: 5 * time.Minute,
		NotChargingDuration:   30 * time.Minute,
		RampUpPercentage:      0.5,
		RampDownPercentage:    0.75,
		MinimumChargingAmps:   5,
		MinimumStateOfCharge:  20,
		NominalVoltage:        230,
		StatsInterval:         10 * time.Minute,
	}
}

// StopsAllowed reports whether safety stops may be issued in mode.
func (s Settings) StopsAllowed(mode Mode) bool {
	return mode != ModePriority || s.PriorityStopPolicy == PolicyEnforce
}
