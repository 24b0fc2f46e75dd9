package model

import (
	"encoding/json"
	"strings"
)

// ChargingState is the charger status reported by the vehicle.
type ChargingState int

const (
	Unknown ChargingState = iota
	Disconnected
	Stopped
	Starting
	Charging
	Complete
)

var chargingStateNames = map[ChargingState]string{
	Unknown:      "Unknown",
	Disconnected: "Disconnected",
	Stopped:      "Stopped",
	Starting:     "Starting",
	Charging:     "Charging",
	Complete:     "Complete",
}

func (s ChargingState) String() string {
	if n, ok := chargingStateNames[s]; ok {
		return n
	}
	return "Unknown"
}

// ParseChargingState maps a vendor string onto a ChargingState. Matching is
// case insensitive and unrecognised values yield Unknown.
func ParseChargingState(v string) ChargingState {
	for s, n := range chargingStateNames {
		if strings.EqualFold(n, v) {
			return s
		}
	}
	return Unknown
}

func (s ChargingState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ChargingState) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = ParseChargingState(v)
	return nil
}

// MilesToKilometres converts the vehicle's rated range unit.
const MilesToKilometres = 1.609344

// ChargeState is a snapshot of the vehicle charger.
type ChargeState struct {
	ChargingState           ChargingState `json:"charging_state"`
	BatteryLevel            int           `json:"battery_level"`
	ChargeLimitSOC          int           `json:"charge_limit_soc"`
	ChargerActualCurrent    int           `json:"charger_actual_current"`
	ChargeCurrentRequest    int           `json:"charge_current_request"`
	ChargeCurrentRequestMax int           `json:"charge_current_request_max"`
	ChargerVoltage          int           `json:"charger_voltage"`
	ChargerPhases           *int          `json:"charger_phases"`
	MinutesToFullCharge     int           `json:"minutes_to_full_charge"`
	TimeToFullCharge        float64       `json:"time_to_full_charge"`
	ChargeEnergyAdded       float64       `json:"charge_energy_added"`
	IdealBatteryRange       float64       `json:"ideal_battery_range"`
}

// Phases returns the number of charger phases, defaulting to one when the
// vehicle does not report it.
func (c ChargeState) Phases() int {
	if c.ChargerPhases == nil || *c.ChargerPhases <= 0 {
		return 1
	}
	return *c.ChargerPhases
}

// IsCharging reports whether the charger is actively delivering current.
func (c ChargeState) IsCharging() bool { return c.ChargingState == Charging }

// RangeKm returns the current rated range in kilometres.
func (c ChargeState) RangeKm() float64 {
	return c.IdealBatteryRange * MilesToKilometres
}

// FullRangeKm extrapolates the rated range to a full battery.
func (c ChargeState) FullRangeKm() float64 {
	if c.BatteryLevel <= 0 {
		return 0
	}
	return c.RangeKm() * 100 / float64(c.BatteryLevel)
}
