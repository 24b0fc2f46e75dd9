// Package modbus reads site power from SunSpec devices over Modbus TCP: grid
// power from a meter (models 201-204) and PV output from an inverter
// (models 101-103).
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/drgrieve/TeslaChargingManager/core/factory"
	"github.com/drgrieve/TeslaChargingManager/core/logger"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/power"
	infralog "github.com/drgrieve/TeslaChargingManager/infra/logger"
)

// Config selects the Modbus endpoint and unit ids.
type Config struct {
	// URL is a simonvetter/modbus URL such as "tcp://192.168.1.20:502".
	URL            string `json:"url"`
	MeterUnitID    uint8  `json:"meter_unit_id"`
	InverterUnitID uint8  `json:"inverter_unit_id"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// InvertGrid flips the meter sign for meters mounted the other way round.
	InvertGrid bool `json:"invert_grid"`
}

// SetDefaults applies the Fronius unit ids.
func (c *Config) SetDefaults() {
	if c.MeterUnitID == 0 {
		c.MeterUnitID = 200
	}
	if c.InverterUnitID == 0 {
		c.InverterUnitID = 1
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 3
	}
}

// Source polls the meter and the inverter on each Telemetry call.
type Source struct {
	cfg Config
	log logger.Logger
	now func() time.Time

	mu           sync.Mutex
	client       registerReader
	open         bool
	meterAddr    uint16
	inverterAddr uint16
}

func init() {
	_ = power.RegisterSource("modbus", func(conf map[string]any) (power.Source, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSource(c)
	})
}

// NewSource creates the Modbus client. The connection is opened lazily.
func NewSource(cfg Config) (*Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}
	cfg.SetDefaults()
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     cfg.URL,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return newSource(cfg, client), nil
}

func newSource(cfg Config, client registerReader) *Source {
	return &Source{cfg: cfg, client: client, log: infralog.New("modbus"), now: time.Now}
}

// connect opens the connection and locates the meter and inverter models.
func (s *Source) connect() error {
	if s.open {
		return nil
	}
	if err := s.client.Open(); err != nil {
		return err
	}
	addr, err := s.locate(s.cfg.MeterUnitID, 201, 204)
	if err != nil {
		_ = s.client.Close()
		return fmt.Errorf("meter: %w", err)
	}
	s.meterAddr = addr
	addr, err = s.locate(s.cfg.InverterUnitID, 101, 103)
	if err != nil {
		_ = s.client.Close()
		return fmt.Errorf("inverter: %w", err)
	}
	s.inverterAddr = addr
	s.open = true
	s.log.Infof("meter model at %d on unit %d, inverter model at %d on unit %d",
		s.meterAddr, s.cfg.MeterUnitID, s.inverterAddr, s.cfg.InverterUnitID)
	return nil
}

func (s *Source) locate(unit uint8, lo, hi uint16) (uint16, error) {
	if err := s.client.SetUnitId(unit); err != nil {
		return 0, err
	}
	models, err := surveyModels(s.client)
	if err != nil {
		return 0, err
	}
	addr, ok := findModel(models, lo, hi)
	if !ok {
		return 0, fmt.Errorf("no model %d-%d on unit %d", lo, hi, unit)
	}
	return addr, nil
}

func (s *Source) readWatts(unit uint8, addr uint16, sfOffset uint16) (float64, error) {
	if err := s.client.SetUnitId(unit); err != nil {
		return 0, err
	}
	regs, err := s.client.ReadRegisters(addr, sfOffset+1, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	return applySF(regs[0], regs[sfOffset])
}

// Telemetry implements power.Source. Read errors drop the connection so the
// next call re-surveys the devices.
func (s *Source) Telemetry(ctx context.Context) (model.Telemetry, error) {
	if err := ctx.Err(); err != nil {
		return model.Telemetry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connect(); err != nil {
		return model.Telemetry{}, err
	}
	grid, err := s.readWatts(s.cfg.MeterUnitID, s.meterAddr+meterWattOffset, meterWattSFOffset-meterWattOffset)
	if err != nil {
		s.reset()
		return model.Telemetry{}, fmt.Errorf("meter power: %w", err)
	}
	solar, err := s.readWatts(s.cfg.InverterUnitID, s.inverterAddr+inverterWattOffset, 1)
	if err != nil {
		s.reset()
		return model.Telemetry{}, fmt.Errorf("inverter power: %w", err)
	}
	if s.cfg.InvertGrid {
		grid = -grid
	}
	if solar < 0 {
		solar = 0
	}
	gridKW, solarKW := grid/1000, solar/1000
	return model.Telemetry{GridKW: gridKW, SolarKW: solarKW, LoadKW: gridKW + solarKW, Timestamp: s.now()}, nil
}

func (s *Source) reset() {
	if s.open {
		_ = s.client.Close()
	}
	s.open = false
}

// Close releases the connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

var (
	_ power.Source = (*Source)(nil)
	_ power.Closer = (*Source)(nil)
)
