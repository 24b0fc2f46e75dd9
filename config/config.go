package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/drgrieve/TeslaChargingManager/core/factory"
	"github.com/drgrieve/TeslaChargingManager/core/metrics"
	"github.com/drgrieve/TeslaChargingManager/infra/mqtt"
	"github.com/drgrieve/TeslaChargingManager/simulator"
)

type Config struct {
	// LogLevel is a zerolog level name. Empty keeps "info".
	LogLevel  string               `json:"log_level"`
	Tesla     TeslaConfig          `json:"tesla"`
	Telemetry factory.ModuleConfig `json:"telemetry"`
	Site      SiteConfig           `json:"site"`
	Charging  ChargingConfig       `json:"charging"`
	Trip      TripConfig           `json:"trip"`
	MQTT      mqtt.Config          `json:"mqtt"`
	Metrics   metrics.Config       `json:"metrics"`
	Journal   JournalConfig        `json:"journal"`
	Sentry    SentryConfig         `json:"sentry"`
	// Simulator configures `tcm simulate` dry runs.
	Simulator simulator.Config `json:"simulator"`
}

// Load reads a YAML or JSON file and applies K_ prefixed environment
// overrides, e.g. K_TESLA__ACCESS_TOKEN sets tesla.access_token.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation.
func Read(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// SetDefaults fills every section's defaults.
func (c *Config) SetDefaults() {
	if c.Telemetry.Type == "" {
		c.Telemetry.Type = "pulse"
	}
	c.Tesla.SetDefaults()
	c.Site.SetDefaults()
	c.Charging.SetDefaults()
	c.Trip.SetDefaults()
	c.Journal.SetDefaults()
	c.Simulator.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Tesla.Validate(); err != nil {
		return fmt.Errorf("tesla: %w", err)
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Charging.Validate(); err != nil {
		return fmt.Errorf("charging: %w", err)
	}
	if err := c.Trip.Validate(c.Charging); err != nil {
		return fmt.Errorf("trip: %w", err)
	}
	if err := c.Journal.Validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}
