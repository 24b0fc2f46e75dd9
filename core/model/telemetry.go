package model

import "time"

// Weather is reported by some telemetry sources alongside power data.
type Weather struct {
	Daytime      bool    `json:"daytime"`
	TemperatureC float64 `json:"temperature"`
	Description  string  `json:"description"`
}

// Telemetry is one power-flow reading for the site. Grid power is positive
// when importing and negative when exporting.
type Telemetry struct {
	GridKW    float64   `json:"grid_kw"`
	SolarKW   float64   `json:"solar_kw"`
	LoadKW    float64   `json:"load_kw"`
	Timestamp time.Time `json:"timestamp"`
	Weather   *Weather  `json:"weather,omitempty"`
}

// IsZero reports the all-zero reading sources return when data is missing.
func (t Telemetry) IsZero() bool {
	return t.GridKW == 0 && t.SolarKW == 0 && t.LoadKW == 0
}
