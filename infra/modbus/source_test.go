package modbus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice holds SunSpec register maps per unit id.
type fakeDevice struct {
	units   map[uint8]map[uint16]uint16
	unit    uint8
	opens   int
	closes  int
	failAt  uint16
	readErr error
}

func (f *fakeDevice) Open() error              { f.opens++; return nil }
func (f *fakeDevice) Close() error             { f.closes++; return nil }
func (f *fakeDevice) SetUnitId(id uint8) error { f.unit = id; return nil }

func (f *fakeDevice) ReadRegister(addr uint16, rt modbus.RegType) (uint16, error) {
	regs, err := f.ReadRegisters(addr, 1, rt)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

func (f *fakeDevice) ReadRegisters(addr, qty uint16, _ modbus.RegType) ([]uint16, error) {
	if f.readErr != nil && addr == f.failAt {
		return nil, f.readErr
	}
	regs, ok := f.units[f.unit]
	if !ok {
		return nil, fmt.Errorf("unit %d timeout", f.unit)
	}
	out := make([]uint16, qty)
	for i := range out {
		out[i] = regs[addr+uint16(i)]
	}
	return out, nil
}

// sunspecMap lays out a common model followed by model id.
func sunspecMap(id uint16, length uint16, values map[uint16]uint16) (map[uint16]uint16, uint16) {
	regs := map[uint16]uint16{40000: 0x5375, 40001: 0x6e53, 40002: 1, 40003: 66}
	base := uint16(40002 + 66 + 2)
	regs[base] = id
	regs[base+1] = length
	for off, v := range values {
		regs[base+off] = v
	}
	regs[base+length+2] = 0xFFFF
	return regs, base
}

func negative(v int16) uint16 { return uint16(v) }

func newFake() *fakeDevice {
	meter, _ := sunspecMap(203, 105, map[uint16]uint16{18: negative(-1520), 22: 0})
	inverter, _ := sunspecMap(103, 50, map[uint16]uint16{14: 362, 15: negative(1)})
	return &fakeDevice{units: map[uint8]map[uint16]uint16{200: meter, 1: inverter}}
}

func TestApplySF(t *testing.T) {
	v, err := applySF(negative(-1234), negative(-2))
	require.NoError(t, err)
	assert.InDelta(t, -12.34, v, 1e-9)
	v, err = applySF(5, 3)
	require.NoError(t, err)
	assert.InDelta(t, 5000, v, 1e-9)
	_, err = applySF(0x8000, 0)
	assert.Error(t, err)
}

func TestSurveyModels(t *testing.T) {
	regs, base := sunspecMap(203, 105, nil)
	dev := &fakeDevice{units: map[uint8]map[uint16]uint16{1: regs}, unit: 1}
	models, err := surveyModels(dev)
	require.NoError(t, err)
	assert.Equal(t, uint16(40002), models[1])
	assert.Equal(t, base, models[203])
	addr, ok := findModel(models, 201, 204)
	assert.True(t, ok)
	assert.Equal(t, base, addr)

	dev.units[1][40000] = 0
	_, err = surveyModels(dev)
	assert.ErrorIs(t, err, errNotSunSpec)
}

func TestTelemetryReadsMeterAndInverter(t *testing.T) {
	dev := newFake()
	cfg := Config{URL: "tcp://localhost:502"}
	cfg.SetDefaults()
	s := newSource(cfg, dev)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	tel, err := s.Telemetry(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -1.52, tel.GridKW, 1e-9)
	assert.InDelta(t, 3.62, tel.SolarKW, 1e-9)
	assert.InDelta(t, 2.10, tel.LoadKW, 1e-9)
	assert.Equal(t, now, tel.Timestamp)

	_, err = s.Telemetry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dev.opens, "connection reused")
}

func TestTelemetryResurveysAfterReadError(t *testing.T) {
	dev := newFake()
	cfg := Config{URL: "tcp://localhost:502", InvertGrid: true}
	cfg.SetDefaults()
	s := newSource(cfg, dev)
	_, err := s.Telemetry(context.Background())
	require.NoError(t, err)

	dev.failAt = s.inverterAddr + inverterWattOffset
	dev.readErr = errors.New("i/o timeout")
	_, err = s.Telemetry(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, dev.closes)

	dev.readErr = nil
	tel, err := s.Telemetry(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.52, tel.GridKW, 1e-9, "grid inverted")
	assert.Equal(t, 2, dev.opens)
}

func TestMissingInverterModel(t *testing.T) {
	dev := newFake()
	delete(dev.units, 1)
	cfg := Config{URL: "tcp://localhost:502"}
	cfg.SetDefaults()
	s := newSource(cfg, dev)
	_, err := s.Telemetry(context.Background())
	assert.ErrorContains(t, err, "inverter")
	assert.Equal(t, 1, dev.closes)
}
