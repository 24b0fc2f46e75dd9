package config

import (
	"fmt"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/control"
)

// TripConfig configures the departure planner.
type TripConfig struct {
	PriorityCurve        string `json:"priority_curve"`
	SecondaryCurve       string `json:"secondary_curve"`
	MarginMinutes        int    `json:"margin_minutes"`
	CheckIntervalSeconds int    `json:"check_interval_seconds"`
	// PriorityStopPolicy is "suppress" or "enforce".
	PriorityStopPolicy string `json:"priority_stop_policy"`
}

// SetDefaults applies the Solar+/Solar curve pair and timings.
func (c *TripConfig) SetDefaults() {
	if c.PriorityCurve == "" {
		c.PriorityCurve = "Solar+"
	}
	if c.SecondaryCurve == "" {
		c.SecondaryCurve = "Solar"
	}
	if c.MarginMinutes == 0 {
		c.MarginMinutes = 5
	}
	if c.CheckIntervalSeconds <= 0 {
		c.CheckIntervalSeconds = 60
	}
	if c.PriorityStopPolicy == "" {
		c.PriorityStopPolicy = "suppress"
	}
}

// Validate checks the policy. Curves are resolved when a trip starts so a
// configuration without trip curves still runs plain sessions.
func (c TripConfig) Validate(_ ChargingConfig) error {
	if _, err := control.ParseStopPolicy(c.PriorityStopPolicy); err != nil {
		return err
	}
	if c.MarginMinutes < 0 {
		return fmt.Errorf("margin_minutes must not be negative")
	}
	return nil
}

// StopPolicy returns the parsed priority stop policy.
func (c TripConfig) StopPolicy() control.StopPolicy {
	p, _ := control.ParseStopPolicy(c.PriorityStopPolicy)
	return p
}

// Margin is kept free before departure.
func (c TripConfig) Margin() time.Duration { return time.Duration(c.MarginMinutes) * time.Minute }

// CheckInterval is the planner polling period.
func (c TripConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}
