package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/control"
	"github.com/drgrieve/TeslaChargingManager/core/model"
)

// ChargingConfig tunes the control loop and lists the charge curves.
type ChargingConfig struct {
	DefaultCurve string              `json:"default_curve"`
	Curves       []model.ChargeCurve `json:"curves"`

	MinLoopSleepSeconds          int     `json:"min_loop_sleep_seconds"`
	MaxLoopSleepSeconds          int     `json:"max_loop_sleep_seconds"`
	GridMaxDrawKW                float64 `json:"grid_max_draw_kw"`
	GridMaxSustainedDrawKW       float64 `json:"grid_max_sustained_draw_kw"`
	SustainedDrawSeconds         int     `json:"sustained_draw_seconds"`
	NotChargingSeconds           int     `json:"not_charging_seconds"`
	RampUpPercentage             float64 `json:"ramp_up_percentage"`
	RampDownPercentage           float64 `json:"ramp_down_percentage"`
	MinimumChargingAmps          int     `json:"minimum_charging_amps"`
	MinimumStateOfCharge         int     `json:"minimum_state_of_charge"`
	MinimumPowerToStartChargingW float64 `json:"minimum_power_to_start_charging_w"`
	NominalVoltage               int     `json:"nominal_voltage"`
	StatsIntervalSeconds         int     `json:"stats_interval_seconds"`
}

// SetDefaults fills unset values from control.DefaultSettings.
func (c *ChargingConfig) SetDefaults() {
	d := control.DefaultSettings()
	setSeconds(&c.MinLoopSleepSeconds, d.MinLoopSleep)
	setSeconds(&c.MaxLoopSleepSeconds, d.MaxLoopSleep)
	setSeconds(&c.SustainedDrawSeconds, d.SustainedDrawDuration)
	setSeconds(&c.NotChargingSeconds, d.NotChargingDuration)
	setSeconds(&c.StatsIntervalSeconds, d.StatsInterval)
	if c.GridMaxDrawKW == 0 {
		c.GridMaxDrawKW = d.GridMaxDraw
	}
	if c.GridMaxSustainedDrawKW == 0 {
		c.GridMaxSustainedDrawKW = d.GridMaxSustainedDraw
	}
	if c.RampUpPercentage == 0 {
		c.RampUpPercentage = d.RampUpPercentage
	}
	if c.RampDownPercentage == 0 {
		c.RampDownPercentage = d.RampDownPercentage
	}
	if c.MinimumChargingAmps == 0 {
		c.MinimumChargingAmps = d.MinimumChargingAmps
	}
	if c.MinimumStateOfCharge == 0 {
		c.MinimumStateOfCharge = d.MinimumStateOfCharge
	}
	if c.NominalVoltage == 0 {
		c.NominalVoltage = d.NominalVoltage
	}
	if c.DefaultCurve == "" && len(c.Curves) > 0 {
		c.DefaultCurve = c.Curves[0].Name
	}
}

func setSeconds(v *int, d time.Duration) {
	if *v == 0 {
		*v = int(d / time.Second)
	}
}

// Validate checks ranges and the curves.
func (c ChargingConfig) Validate() error {
	if c.MinLoopSleepSeconds <= 0 || c.MaxLoopSleepSeconds < c.MinLoopSleepSeconds {
		return fmt.Errorf("loop sleep must satisfy 0 < min <= max")
	}
	if c.GridMaxSustainedDrawKW > c.GridMaxDrawKW {
		return fmt.Errorf("grid_max_sustained_draw_kw exceeds grid_max_draw_kw")
	}
	for name, p := range map[string]float64{"ramp_up_percentage": c.RampUpPercentage, "ramp_down_percentage": c.RampDownPercentage} {
		if p <= 0 || p > 1 {
			return fmt.Errorf("%s must be in (0, 1]", name)
		}
	}
	if c.MinimumChargingAmps <= 0 {
		return fmt.Errorf("minimum_charging_amps must be positive")
	}
	if c.MinimumStateOfCharge < 0 || c.MinimumStateOfCharge > 100 {
		return fmt.Errorf("minimum_state_of_charge out of range")
	}
	if len(c.Curves) == 0 {
		return fmt.Errorf("at least one charge curve is required")
	}
	seen := make(map[string]bool, len(c.Curves))
	for _, curve := range c.Curves {
		if err := curve.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(curve.Name)
		if seen[key] {
			return fmt.Errorf("duplicate charge curve %s", curve.Name)
		}
		seen[key] = true
	}
	if _, ok := c.Curve(c.DefaultCurve); !ok {
		return fmt.Errorf("default curve %s not found", c.DefaultCurve)
	}
	return nil
}

// Curve finds a curve by name, ignoring case.
func (c ChargingConfig) Curve(name string) (model.ChargeCurve, bool) {
	for _, curve := range c.Curves {
		if strings.EqualFold(curve.Name, name) {
			return curve, true
		}
	}
	return model.ChargeCurve{}, false
}

// Settings converts the section into control loop settings.
func (c ChargingConfig) Settings(policy control.StopPolicy) control.Settings {
	return control.Settings{
		MinLoopSleep:                time.Duration(c.MinLoopSleepSeconds) * time.Second,
		MaxLoopSleep:                time.Duration(c.MaxLoopSleepSeconds) * time.Second,
		GridMaxDraw:                 c.GridMaxDrawKW,
		GridMaxSustainedDraw:        c.GridMaxSustainedDrawKW,
		SustainedDrawDuration:       time.Duration(c.SustainedDrawSeconds) * time.Second,
		NotChargingDuration:         time.Duration(c.NotChargingSeconds) * time.Second,
		RampUpPercentage:            c.RampUpPercentage,
		RampDownPercentage:          c.RampDownPercentage,
		MinimumChargingAmps:         c.MinimumChargingAmps,
		MinimumStateOfCharge:        c.MinimumStateOfCharge,
		MinimumPowerToStartCharging: c.MinimumPowerToStartChargingW,
		NominalVoltage:              c.NominalVoltage,
		StatsInterval:               time.Duration(c.StatsIntervalSeconds) * time.Second,
		PriorityStopPolicy:          policy,
	}
}
