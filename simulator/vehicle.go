package simulator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
)

// idleVoltage is reported by a plugged in charger that is not charging.
const idleVoltage = 2

// VehicleID is the account id of the simulated vehicle.
const VehicleID int64 = 1

// Vehicle is a plugged in car whose battery fills with the commanded
// current. It implements vehicle.Client and vehicle.Finder.
type Vehicle struct {
	now func() time.Time

	mu          sync.Mutex
	cfg         Config
	battery     Battery
	state       model.ChargingState
	amps        int
	limit       int
	energyAdded float64
	last        time.Time
	selected    int64
	location    vehicle.Location
	commands    []string
}

// NewVehicle returns a stopped vehicle plugged in at loc.
func NewVehicle(cfg Config, loc vehicle.Location, now func() time.Time) *Vehicle {
	cfg.SetDefaults()
	return &Vehicle{
		now:      now,
		cfg:      cfg,
		battery:  Battery{CapacityKWh: cfg.CapacityKWh, SOC: float64(cfg.BatteryLevel) / 100},
		state:    model.Stopped,
		amps:     cfg.MaxAmps,
		limit:    cfg.ChargeLimit,
		last:     now(),
		location: loc,
	}
}

// advance integrates charging since the last call. Callers hold mu.
func (v *Vehicle) advance() {
	now := v.now()
	dt := now.Sub(v.last)
	v.last = now
	if v.state != model.Charging || dt <= 0 {
		return
	}
	v.energyAdded += v.battery.Charge(v.powerKW(), dt, float64(v.limit)/100)
	if v.battery.Level() >= v.limit {
		v.state = model.Complete
	}
}

func (v *Vehicle) powerKW() float64 {
	if v.state != model.Charging {
		return 0
	}
	return float64(v.amps*v.cfg.Voltage*v.cfg.Phases) / 1000
}

// DrawKW returns the power drawn by the charger.
func (v *Vehicle) DrawKW() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	return v.powerKW()
}

// Disconnect unplugs the charger.
func (v *Vehicle) Disconnect() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	v.state = model.Disconnected
}

// Commands returns the commands received so far.
func (v *Vehicle) Commands() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.commands...)
}

func (v *Vehicle) ChargeState(context.Context) (*model.ChargeState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	phases := v.cfg.Phases
	st := &model.ChargeState{
		ChargingState:           v.state,
		BatteryLevel:            v.battery.Level(),
		ChargeLimitSOC:          v.limit,
		ChargeCurrentRequest:    v.amps,
		ChargeCurrentRequestMax: v.cfg.MaxAmps,
		ChargerVoltage:          idleVoltage,
		ChargerPhases:           &phases,
		ChargeEnergyAdded:       math.Round(v.energyAdded*100) / 100,
		IdealBatteryRange:       v.battery.SOC * v.battery.CapacityKWh * v.cfg.MilesPerKWh,
	}
	if v.state == model.Charging {
		st.ChargerActualCurrent = v.amps
		st.ChargerVoltage = v.cfg.Voltage
		if p := v.powerKW(); p > 0 {
			remaining := (float64(v.limit)/100 - v.battery.SOC) * v.battery.CapacityKWh
			st.TimeToFullCharge = math.Max(remaining/p, 0)
			st.MinutesToFullCharge = int(math.Round(st.TimeToFullCharge * 60))
		}
	}
	return st, nil
}

func (v *Vehicle) reject(command, reason string) error {
	return &vehicle.CommandError{Command: command, Reason: reason}
}

// SetChargingAmps clamps the request to the charger range like the car does.
func (v *Vehicle) SetChargingAmps(_ context.Context, amps int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	v.commands = append(v.commands, fmt.Sprintf("set_charging_amps %d", amps))
	v.amps = min(max(amps, 1), v.cfg.MaxAmps)
	return nil
}

func (v *Vehicle) StartCharging(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	v.commands = append(v.commands, "charge_start")
	switch {
	case v.state == model.Charging:
		return nil
	case v.state == model.Disconnected:
		return v.reject("charge_start", "disconnected")
	case v.battery.Level() >= v.limit:
		v.state = model.Complete
		return v.reject("charge_start", "complete")
	}
	v.state = model.Charging
	return nil
}

func (v *Vehicle) StopCharging(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	v.commands = append(v.commands, "charge_stop")
	if v.state == model.Charging {
		v.state = model.Stopped
	}
	return nil
}

func (v *Vehicle) SetChargeLimit(_ context.Context, percent int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	v.commands = append(v.commands, fmt.Sprintf("set_charge_limit %d", percent))
	if percent < 50 || percent > 100 {
		return v.reject("set_charge_limit", "out_of_range")
	}
	v.limit = percent
	if v.state == model.Complete && v.battery.Level() < percent {
		v.state = model.Stopped
	}
	return nil
}

func (v *Vehicle) Vehicles(context.Context) ([]vehicle.Summary, error) {
	return []vehicle.Summary{{ID: VehicleID, DisplayName: "Simulated", State: "online"}}, nil
}

func (v *Vehicle) DriveState(_ context.Context, id int64) (*vehicle.DriveState, error) {
	if id != VehicleID {
		return nil, fmt.Errorf("unknown vehicle %d", id)
	}
	return &vehicle.DriveState{Location: v.location}, nil
}

func (v *Vehicle) VehicleID() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected
}

func (v *Vehicle) SetVehicleID(id int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = id
}
