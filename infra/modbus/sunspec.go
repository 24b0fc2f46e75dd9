package modbus

import (
	"errors"
	"fmt"
	"math"

	"github.com/simonvetter/modbus"
)

// SunSpec register map.
const (
	sunspecBase   uint16 = 40000
	firstModel    uint16 = 40002
	endModel      uint16 = 0xFFFF
	notImplInt16  uint16 = 0x8000
	maxModelCount        = 20

	meterWattOffset    uint16 = 18
	meterWattSFOffset  uint16 = 22
	inverterWattOffset uint16 = 14
)

var errNotSunSpec = errors.New("SunSpec marker not found")

// registerReader is the subset of *modbus.ModbusClient used here.
type registerReader interface {
	Open() error
	Close() error
	SetUnitId(id uint8) error
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
	ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error)
}

// surveyModels walks the SunSpec model chain and returns the first address
// of each model id found.
func surveyModels(r registerReader) (map[uint16]uint16, error) {
	marker, err := r.ReadRegisters(sunspecBase, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	if marker[0] != 0x5375 || marker[1] != 0x6e53 { // "SunS"
		return nil, errNotSunSpec
	}
	models := make(map[uint16]uint16)
	addr := firstModel
	for i := 0; i < maxModelCount; i++ {
		hdr, err := r.ReadRegisters(addr, 2, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, fmt.Errorf("model header at %d: %w", addr, err)
		}
		if hdr[0] == endModel {
			break
		}
		if _, ok := models[hdr[0]]; !ok {
			models[hdr[0]] = addr
		}
		addr += hdr[1] + 2
	}
	return models, nil
}

// findModel returns the address of the first model within [lo, hi].
func findModel(models map[uint16]uint16, lo, hi uint16) (uint16, bool) {
	for id := lo; id <= hi; id++ {
		if addr, ok := models[id]; ok {
			return addr, true
		}
	}
	return 0, false
}

// applySF scales a signed register by its signed power-of-ten factor.
func applySF(value, sf uint16) (float64, error) {
	if value == notImplInt16 || sf == notImplInt16 {
		return 0, errors.New("register not implemented")
	}
	return float64(int16(value)) * math.Pow(10, float64(int16(sf))), nil
}
