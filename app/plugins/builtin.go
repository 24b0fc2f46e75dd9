// Package plugins links the built-in telemetry sources and metrics sinks so
// their factories are registered by name.
package plugins

import (
	coremetrics "github.com/drgrieve/TeslaChargingManager/core/metrics"
	"github.com/drgrieve/TeslaChargingManager/core/power"

	_ "github.com/drgrieve/TeslaChargingManager/infra/metrics"
	_ "github.com/drgrieve/TeslaChargingManager/infra/modbus"
	_ "github.com/drgrieve/TeslaChargingManager/infra/mqtt"
	_ "github.com/drgrieve/TeslaChargingManager/infra/pulse"
)

// Sources lists the telemetry source types usable in the telemetry section.
func Sources() []string { return power.SourceNames() }

// Sinks lists the metrics sink types usable in metrics.sinks.
func Sinks() []string { return coremetrics.SinkNames() }
