package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/drgrieve/TeslaChargingManager/core/logger"
)

// Logger is the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)            {}
func (NopLogger) Debugw(string, corelogger.Fields) {}
func (NopLogger) Infof(string, ...any)             {}
func (NopLogger) Warnf(string, ...any)             {}
func (NopLogger) Errorf(string, ...any)            {}
func (n NopLogger) With(corelogger.Fields) Logger  { return n }

// New returns the component logger used across the service.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// SetLevel sets the global minimum level by name. An empty name selects info.
func SetLevel(name string) error {
	if name == "" {
		name = "info"
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
