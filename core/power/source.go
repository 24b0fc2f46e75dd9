// Package power defines the site telemetry source used by the control loop.
package power

import (
	"context"

	"github.com/drgrieve/TeslaChargingManager/core/factory"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
)

// Source returns the latest site power reading. Implementations return an
// error or an all-zero reading when data is temporarily unavailable.
type Source interface {
	Telemetry(ctx context.Context) (model.Telemetry, error)
}

// Locator is implemented by sources that know where the site is.
type Locator interface {
	SiteLocation(ctx context.Context) (vehicle.Location, error)
}

// Closer is implemented by sources holding connections.
type Closer interface {
	Close() error
}

var sourceRegistry = factory.NewRegistry[Source]()

// RegisterSource adds a telemetry source factory identified by name.
func RegisterSource(name string, f factory.Factory[Source]) error {
	return sourceRegistry.Register(name, f)
}

// NewSource builds the configured telemetry source.
func NewSource(cfg factory.ModuleConfig) (Source, error) {
	return sourceRegistry.Create(cfg)
}

// SourceNames lists the registered telemetry source types.
func SourceNames() []string { return sourceRegistry.Names() }
