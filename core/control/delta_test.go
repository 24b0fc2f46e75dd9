package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
	"github.com/drgrieve/TeslaChargingManager/internal/eventbus"
)

func TestApplyRampsUpOnExport(t *testing.T) {
	m := &mockClient{}
	st := chargingAt(5)
	m.On("ChargeState", mock.Anything).Return(&st, nil)
	// floor(2000/240) = 8, half of it applied.
	m.On("SetChargingAmps", mock.Anything, 9).Return(nil).Once()

	c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
	adj, err := c.Apply(context.Background(), -2.0, 1.0)
	require.NoError(t, err)
	assert.True(t, adj.Adjusted)
	assert.Equal(t, 5, adj.FromAmps)
	assert.Equal(t, 9, adj.ToAmps)
	assert.Equal(t, 4, adj.Delta())
	m.AssertExpectations(t)
}

func TestApplySmallRampMovesOneAmp(t *testing.T) {
	m := &mockClient{}
	st := chargingAt(5)
	m.On("ChargeState", mock.Anything).Return(&st, nil)
	// 10% of 8A rounds to zero, the minimum step still applies.
	m.On("SetChargingAmps", mock.Anything, 6).Return(nil).Once()

	settings := testSettings()
	settings.RampUpPercentage = 0.1
	c := NewCalculator(m, settings, nopLog, nil, "s1")
	adj, err := c.Apply(context.Background(), -2.0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 6, adj.ToAmps)
	m.AssertExpectations(t)
}

func TestApplyRampsDownNeverBelowMinimum(t *testing.T) {
	m := &mockClient{}
	st := chargingAt(10)
	m.On("ChargeState", mock.Anything).Return(&st, nil)
	m.On("SetChargingAmps", mock.Anything, 2).Return(nil).Once()

	c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
	adj, err := c.Apply(context.Background(), 3.0, 3.0)
	require.NoError(t, err)
	assert.True(t, adj.Adjusted)
	assert.Equal(t, 2, adj.ToAmps)
	m.AssertExpectations(t)
}

func TestApplyDefersReductionUntilLoadShowsCharger(t *testing.T) {
	m := &mockClient{}
	st := chargingAt(10)
	m.On("ChargeState", mock.Anything).Return(&st, nil)

	c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
	// 1kW is ~4A, well below the 10A the charger reports.
	adj, err := c.Apply(context.Background(), 1.0, 1.0)
	require.NoError(t, err)
	assert.False(t, adj.Adjusted)
	m.AssertNotCalled(t, "SetChargingAmps", mock.Anything, mock.Anything)
}

func TestApplyClampsToVehicleMaximum(t *testing.T) {
	m := &mockClient{}
	st := chargingAt(30)
	m.On("ChargeState", mock.Anything).Return(&st, nil)
	m.On("SetChargingAmps", mock.Anything, 32).Return(nil).Once()

	c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
	adj, err := c.Apply(context.Background(), -5.0, 8.0)
	require.NoError(t, err)
	assert.Equal(t, 32, adj.ToAmps)
	m.AssertExpectations(t)
}

func TestApplyStartsStoppedChargerOnlyAboveMinimumPower(t *testing.T) {
	stopped := model.ChargeState{
		ChargingState:           model.Stopped,
		BatteryLevel:            40,
		ChargeLimitSOC:          80,
		ChargeCurrentRequestMax: 32,
		ChargerVoltage:          240,
	}

	t.Run("below", func(t *testing.T) {
		m := &mockClient{}
		m.On("ChargeState", mock.Anything).Return(&stopped, nil)
		c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
		// Two amps at 240V need 480W.
		adj, err := c.Apply(context.Background(), -0.4, 0.5)
		require.NoError(t, err)
		assert.False(t, adj.Started)
		m.AssertNotCalled(t, "StartCharging", mock.Anything)
	})

	t.Run("above", func(t *testing.T) {
		m := &mockClient{}
		m.On("ChargeState", mock.Anything).Return(&stopped, nil)
		m.On("StartCharging", mock.Anything).Return(nil).Once()
		c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
		adj, err := c.Apply(context.Background(), -0.6, 0.5)
		require.NoError(t, err)
		assert.True(t, adj.Started)
		m.AssertExpectations(t)
	})

	t.Run("configured", func(t *testing.T) {
		m := &mockClient{}
		m.On("ChargeState", mock.Anything).Return(&stopped, nil)
		s := testSettings()
		s.MinimumPowerToStartCharging = 1500
		c := NewCalculator(m, s, nopLog, nil, "s1")
		adj, err := c.Apply(context.Background(), -1.2, 0.5)
		require.NoError(t, err)
		assert.False(t, adj.Started)
	})
}

func TestApplyIdleVoltageUsesNominal(t *testing.T) {
	m := &mockClient{}
	st := model.ChargeState{ChargingState: model.Stopped, BatteryLevel: 40, ChargeLimitSOC: 80, ChargerVoltage: 2}
	m.On("ChargeState", mock.Anything).Return(&st, nil)
	m.On("StartCharging", mock.Anything).Return(nil).Once()
	s := testSettings()
	s.NominalVoltage = 230
	c := NewCalculator(m, s, nopLog, nil, "s1")
	// 460W needed at the nominal voltage, 4W at the reported one.
	_, err := c.Apply(context.Background(), -0.5, 0.2)
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestApplyEndsWhenChargerCannotCharge(t *testing.T) {
	tests := []struct {
		name  string
		state model.ChargeState
	}{
		{"at limit", model.ChargeState{ChargingState: model.Stopped, BatteryLevel: 79, ChargeLimitSOC: 80, ChargerVoltage: 240}},
		{"disconnected", model.ChargeState{ChargingState: model.Disconnected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockClient{}
			st := tt.state
			m.On("ChargeState", mock.Anything).Return(&st, nil)
			c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
			_, err := c.Apply(context.Background(), -3, 0)
			assert.ErrorIs(t, err, ErrChargerUnavailable)
			m.AssertNotCalled(t, "StartCharging", mock.Anything)
		})
	}
}

func TestApplyCompleteSetsMinimumOnce(t *testing.T) {
	m := &mockClient{}
	st := model.ChargeState{ChargingState: model.Complete, ChargeCurrentRequest: 16}
	m.On("ChargeState", mock.Anything).Return(&st, nil).Once()
	m.On("SetChargingAmps", mock.Anything, 2).Return(nil).Once()
	c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
	_, err := c.Apply(context.Background(), 0.5, 0)
	require.NoError(t, err)

	done := model.ChargeState{ChargingState: model.Complete, ChargeCurrentRequest: 2}
	m.On("ChargeState", mock.Anything).Return(&done, nil).Once()
	_, err = c.Apply(context.Background(), 0.5, 0)
	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "SetChargingAmps", 1)
}

func TestApplyClassifiesFetchErrors(t *testing.T) {
	m := &mockClient{}
	m.On("ChargeState", mock.Anything).Return(nil, &vehicle.CommandError{Command: "wake_up", Reason: "asleep", Retryable: true}).Once()
	c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
	_, err := c.Apply(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrTransientUnavailable)

	m.On("ChargeState", mock.Anything).Return(nil, errors.New("unauthorized")).Once()
	_, err = c.Apply(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrChargerUnavailable)
}

func TestApplyRejectedCommandContinues(t *testing.T) {
	m := &mockClient{}
	st := chargingAt(5)
	m.On("ChargeState", mock.Anything).Return(&st, nil)
	m.On("SetChargingAmps", mock.Anything, 9).Return(&vehicle.CommandError{Command: "set_charging_amps", Reason: "busy"})

	bus := eventbus.New()
	defer bus.Close()
	sub := bus.Subscribe()
	c := NewCalculator(m, testSettings(), nopLog, bus, "s1")
	adj, err := c.Apply(context.Background(), -2.0, 1.0)
	require.NoError(t, err)
	assert.False(t, adj.Adjusted)
	assert.Equal(t, 5, adj.ToAmps)

	ev := (<-sub).(events.CommandEvent)
	assert.Equal(t, events.CommandSetAmps, ev.Name)
	assert.Equal(t, "s1", ev.SessionID)
	assert.ErrorIs(t, ev.Err, vehicle.ErrCommandRejected)
}

func TestApplySkipsFetchForSubAmpSurplus(t *testing.T) {
	m := &mockClient{}
	st := chargingAt(32)
	m.On("ChargeState", mock.Anything).Return(&st, nil)
	c := NewCalculator(m, testSettings(), nopLog, nil, "s1")
	_, err := c.Apply(context.Background(), -1.0, 8.0)
	require.NoError(t, err)
	_, err = c.Apply(context.Background(), -0.1, 8.0)
	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "ChargeState", 1)
}

func TestApplyKeepsAmpsWithinBounds(t *testing.T) {
	settings := testSettings()
	for actual := settings.MinimumChargingAmps; actual <= 32; actual += 3 {
		for _, delta := range []float64{-9, -4.2, -1.1, 0.3, 1.7, 4.4, 9} {
			v := &fakeVehicle{state: chargingAt(actual)}
			c := NewCalculator(v, settings, nopLog, nil, "s1")
			adj, err := c.Apply(context.Background(), delta, 10)
			require.NoError(t, err)
			if !adj.Adjusted {
				continue
			}
			if adj.ToAmps < settings.MinimumChargingAmps || adj.ToAmps > 32 {
				t.Fatalf("actual=%d delta=%.1f commanded %dA", actual, delta, adj.ToAmps)
			}
			if delta > 0 && adj.ToAmps > actual {
				t.Fatalf("import raised amps from %d to %d", actual, adj.ToAmps)
			}
			if delta < 0 && adj.ToAmps < actual {
				t.Fatalf("export lowered amps from %d to %d", actual, adj.ToAmps)
			}
		}
	}
}

func TestRamp(t *testing.T) {
	assert.Equal(t, 4, ramp(8, 0.5))
	assert.Equal(t, 9, ramp(12, 0.75))
	assert.Equal(t, 1, ramp(1, 0.25))
	assert.Equal(t, 2, ramp(3, 0.5))
	assert.Equal(t, 1, ramp(3, 0.1), "a step that rounds to zero moves one amp")
	assert.Equal(t, 1, ramp(12, 0.01))
}
