package metrics

import "github.com/drgrieve/TeslaChargingManager/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
	// PrometheusAddr enables the /metrics endpoint when set, e.g. ":9100".
	PrometheusAddr string `json:"prometheus_addr" yaml:"prometheus_addr"`
	// APIToken guards the /api routes served next to /metrics.
	APIToken string `json:"api_token" yaml:"api_token"`
}
