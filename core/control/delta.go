package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/logger"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
	"github.com/drgrieve/TeslaChargingManager/internal/eventbus"
)

// minPlausibleVoltage is the lowest reported voltage trusted for power
// conversions. Idle chargers report a few volts.
const minPlausibleVoltage = 100

// Adjustment is the outcome of one Calculator.Apply call.
type Adjustment struct {
	State    model.ChargeState
	FromAmps int
	ToAmps   int
	// Adjusted is set when a new charging rate was commanded.
	Adjusted bool
	// Started is set when charging was started.
	Started bool
}

// Delta returns the signed amps change.
func (a Adjustment) Delta() int { return a.ToAmps - a.FromAmps }

// Calculator converts a power delta into a charging current command.
type Calculator struct {
	client    vehicle.Client
	settings  Settings
	log       logger.Logger
	bus       eventbus.EventBus
	sessionID string
	now       func() time.Time

	last *model.ChargeState
}

// NewCalculator returns a Calculator issuing commands through client.
func NewCalculator(client vehicle.Client, settings Settings, log logger.Logger, bus eventbus.EventBus, sessionID string) *Calculator {
	return &Calculator{client: client, settings: settings, log: log, bus: bus, sessionID: sessionID, now: time.Now}
}

// Apply evaluates powerDeltaKW (positive when the site must shed import,
// negative when surplus is available) against the charger and commands a
// new rate when warranted. ErrChargerUnavailable ends the session and
// ErrTransientUnavailable skips the iteration.
func (c *Calculator) Apply(ctx context.Context, powerDeltaKW, homeLoadKW float64) (Adjustment, error) {
	if powerDeltaKW < 0 && c.last != nil && c.ampsFor(-powerDeltaKW, *c.last) == 0 {
		return Adjustment{State: *c.last, FromAmps: c.last.ChargerActualCurrent, ToAmps: c.last.ChargerActualCurrent}, nil
	}

	st, err := c.client.ChargeState(ctx)
	if err != nil {
		if errors.Is(err, vehicle.ErrUnavailable) {
			return Adjustment{}, fmt.Errorf("%w: %w", ErrTransientUnavailable, err)
		}
		return Adjustment{}, fmt.Errorf("%w: %w", ErrChargerUnavailable, err)
	}
	if st == nil {
		return Adjustment{}, fmt.Errorf("%w: no charge state", ErrChargerUnavailable)
	}
	cp := *st
	c.last = &cp
	adj := Adjustment{State: cp, FromAmps: cp.ChargerActualCurrent, ToAmps: cp.ChargerActualCurrent}

	switch cp.ChargingState {
	case model.Disconnected:
		return adj, fmt.Errorf("%w: charger disconnected", ErrChargerUnavailable)
	case model.Stopped:
		return c.stopped(ctx, adj, powerDeltaKW)
	case model.Complete:
		return c.complete(ctx, adj)
	case model.Charging:
		return c.charging(ctx, adj, powerDeltaKW, homeLoadKW)
	default:
		c.log.Infof("charger is %s", cp.ChargingState)
		return adj, nil
	}
}

func (c *Calculator) stopped(ctx context.Context, adj Adjustment, powerDeltaKW float64) (Adjustment, error) {
	st := adj.State
	if st.BatteryLevel >= st.ChargeLimitSOC-1 {
		return adj, fmt.Errorf("%w: battery %d%% reached limit %d%%", ErrChargerUnavailable, st.BatteryLevel, st.ChargeLimitSOC)
	}
	minPower := c.startPowerW(st)
	if powerDeltaKW*1000+minPower >= 0 {
		c.log.Infof("charging not starting as available power %.0fW is less than minimum of %.0fW", -powerDeltaKW*1000, minPower)
		return adj, nil
	}
	c.log.Infof("starting charging as battery level %d%% is below %d%%", st.BatteryLevel, st.ChargeLimitSOC-1)
	err := c.client.StartCharging(ctx)
	c.publish(events.CommandEvent{Name: events.CommandStart, Err: err})
	if err != nil {
		if errors.Is(err, vehicle.ErrUnavailable) {
			return adj, fmt.Errorf("%w: %w", ErrTransientUnavailable, err)
		}
		c.log.Warnf("failed to start charging: %v", err)
		return adj, nil
	}
	adj.Started = true
	return adj, nil
}

// complete pre-stages the minimum rate for the next session.
func (c *Calculator) complete(ctx context.Context, adj Adjustment) (Adjustment, error) {
	minAmps := c.settings.MinimumChargingAmps
	if adj.State.ChargeCurrentRequest == minAmps {
		return adj, nil
	}
	_, err := c.setAmps(ctx, minAmps, "charging complete")
	return adj, err
}

func (c *Calculator) charging(ctx context.Context, adj Adjustment, powerDeltaKW, homeLoadKW float64) (Adjustment, error) {
	st := adj.State
	actual := st.ChargerActualCurrent
	minAmps := c.settings.MinimumChargingAmps
	maxAmps := st.ChargeCurrentRequestMax

	loadAmps := c.ampsFor(homeLoadKW, st)
	if loadAmps < actual && powerDeltaKW > 0 {
		// The home load does not show the current charge rate yet.
		c.log.Debugf("consumption of %dA indicates charging has not ramped to %dA", loadAmps, actual)
		return adj, nil
	}

	if powerDeltaKW > 0 {
		if actual <= minAmps {
			return adj, nil
		}
		amps := c.ampsFor(powerDeltaKW, st)
		if amps == 0 {
			amps = 1
		}
		target := actual - ramp(amps, c.settings.RampDownPercentage)
		if target < minAmps {
			target = minAmps
		}
		return c.adjust(ctx, adj, target, fmt.Sprintf("importing %.2fkW", powerDeltaKW))
	}

	if actual >= maxAmps {
		return adj, nil
	}
	amps := c.ampsFor(-powerDeltaKW, st)
	if amps <= 0 {
		return adj, nil
	}
	target := actual + ramp(amps, c.settings.RampUpPercentage)
	if target > maxAmps {
		target = maxAmps
	} else if target < minAmps {
		target = minAmps
	}
	return c.adjust(ctx, adj, target, fmt.Sprintf("surplus %.2fkW", -powerDeltaKW))
}

func (c *Calculator) adjust(ctx context.Context, adj Adjustment, target int, reason string) (Adjustment, error) {
	ok, err := c.setAmps(ctx, target, reason)
	if !ok {
		return adj, err
	}
	adj.ToAmps = target
	adj.Adjusted = true
	return adj, nil
}

// setAmps reports whether the command was accepted. Rejected commands are
// logged; only transient failures are returned.
func (c *Calculator) setAmps(ctx context.Context, amps int, reason string) (bool, error) {
	c.log.Infof("charging changed to %d amps (%s)", amps, reason)
	err := c.client.SetChargingAmps(ctx, amps)
	c.publish(events.CommandEvent{Name: events.CommandSetAmps, Amps: amps, Reason: reason, Err: err})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, vehicle.ErrUnavailable) {
		return false, fmt.Errorf("%w: %w", ErrTransientUnavailable, err)
	}
	c.log.Warnf("failed to set charging amps: %v", err)
	return false, nil
}

func (c *Calculator) publish(ev events.CommandEvent) {
	if c.bus == nil {
		return
	}
	ev.SessionID = c.sessionID
	ev.Time = c.now()
	c.bus.Publish(ev)
}

// ampsFor floors powerKW to whole amps at the charger's voltage and phases.
func (c *Calculator) ampsFor(powerKW float64, st model.ChargeState) int {
	kwPerAmp := float64(c.voltage(st)*st.Phases()) / 1000
	if kwPerAmp <= 0 {
		return 0
	}
	return int(math.Floor(powerKW / kwPerAmp))
}

func (c *Calculator) voltage(st model.ChargeState) int {
	if st.ChargerVoltage < minPlausibleVoltage && c.settings.NominalVoltage > 0 {
		return c.settings.NominalVoltage
	}
	return st.ChargerVoltage
}

// startPowerW is the surplus needed before a stopped charger is started.
func (c *Calculator) startPowerW(st model.ChargeState) float64 {
	if c.settings.MinimumPowerToStartCharging > 0 {
		return c.settings.MinimumPowerToStartCharging
	}
	return float64(c.voltage(st) * st.Phases() * c.settings.MinimumChargingAmps)
}

// ramp applies pct to amps. The step is at least one amp.
func ramp(amps int, pct float64) int {
	n := int(math.Round(float64(amps) * pct))
	if n < 1 && amps > 0 {
		return 1
	}
	return n
}
