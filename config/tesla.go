package config

import (
	"fmt"
	"time"
)

// TeslaConfig holds the owner API credentials and vehicle selection.
type TeslaConfig struct {
	BaseURL     string `json:"base_url"`
	AccessToken string `json:"access_token"`
	// VehicleID skips location based vehicle selection when set.
	VehicleID      int64 `json:"vehicle_id"`
	TimeoutSeconds int   `json:"timeout_seconds"`
	MaxRetries     int   `json:"max_retries"`
	// StoppedCacheMinutes is how long a Stopped charge state is reused.
	StoppedCacheMinutes int `json:"stopped_cache_minutes"`
}

// SetDefaults applies the owner API endpoint and retry defaults.
func (c *TeslaConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://owner-api.teslamotors.com"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.StoppedCacheMinutes < 0 {
		c.StoppedCacheMinutes = 0
	} else if c.StoppedCacheMinutes == 0 {
		c.StoppedCacheMinutes = 15
	}
}

// Validate checks mandatory fields.
func (c TeslaConfig) Validate() error {
	if c.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	return nil
}

// Timeout returns the HTTP timeout.
func (c TeslaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StoppedCacheTTL returns the charge state cache lifetime.
func (c TeslaConfig) StoppedCacheTTL() time.Duration {
	return time.Duration(c.StoppedCacheMinutes) * time.Minute
}

// SiteConfig locates the charging site. A zero location is resolved from
// the telemetry source when it supports it.
type SiteConfig struct {
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	MaxDistanceM float64 `json:"max_distance_m"`
}

// SetDefaults applies the vehicle search radius.
func (c *SiteConfig) SetDefaults() {
	if c.MaxDistanceM <= 0 {
		c.MaxDistanceM = 100
	}
}

// Validate checks coordinate ranges.
func (c SiteConfig) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range", c.Longitude)
	}
	return nil
}
