package control

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/infra/logger"
)

var nopLog = logger.NopLogger{}

// fakeClock advances on every After call so sleeps return immediately.
// Once until is reached the clock stops and After never fires.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	until time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if !c.until.IsZero() && !c.now.Add(d).Before(c.until) {
		c.now = c.until
		return ch
	}
	c.now = c.now.Add(d)
	ch <- c.now
	return ch
}

func (c *fakeClock) stopAt(t time.Time) {
	c.mu.Lock()
	c.until = t
	c.mu.Unlock()
}

// mockClient is a testify mock of vehicle.Client.
type mockClient struct{ mock.Mock }

func (m *mockClient) ChargeState(ctx context.Context) (*model.ChargeState, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).(*model.ChargeState)
	return st, args.Error(1)
}
func (m *mockClient) SetChargingAmps(ctx context.Context, amps int) error {
	return m.Called(ctx, amps).Error(0)
}
func (m *mockClient) StartCharging(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockClient) StopCharging(ctx context.Context) error  { return m.Called(ctx).Error(0) }
func (m *mockClient) SetChargeLimit(ctx context.Context, pct int) error {
	return m.Called(ctx, pct).Error(0)
}

// fakeVehicle is a stateful vehicle.Client. Commands change the state the
// way a car would.
type fakeVehicle struct {
	mu       sync.Mutex
	state    model.ChargeState
	states   []model.ChargeState
	fetchErr error
	fetches  int
	commands []string
	amps     []int
	stops    int
	// stopTo is the state entered after StopCharging.
	stopTo model.ChargingState
}

func (f *fakeVehicle) ChargeState(context.Context) (*model.ChargeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.states) > 0 {
		f.state = f.states[0]
		if len(f.states) > 1 {
			f.states = f.states[1:]
		}
	}
	st := f.state
	return &st, nil
}

func (f *fakeVehicle) SetChargingAmps(_ context.Context, amps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "amps")
	f.amps = append(f.amps, amps)
	f.state.ChargeCurrentRequest = amps
	if f.state.IsCharging() {
		f.state.ChargerActualCurrent = amps
	}
	return nil
}

func (f *fakeVehicle) StartCharging(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "start")
	f.state.ChargingState = model.Charging
	return nil
}

func (f *fakeVehicle) StopCharging(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "stop")
	f.stops++
	if f.stopTo != model.Unknown {
		f.state.ChargingState = f.stopTo
		f.state.ChargerActualCurrent = 0
	}
	return nil
}

func (f *fakeVehicle) SetChargeLimit(_ context.Context, pct int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "limit")
	f.state.ChargeLimitSOC = pct
	return nil
}

func (f *fakeVehicle) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeVehicle) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeVehicle) ampsSent() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.amps...)
}

// fakeSource returns the same telemetry on every call and runs onLimit
// once limit calls were made.
type fakeSource struct {
	mu      sync.Mutex
	tel     model.Telemetry
	err     error
	calls   int
	limit   int
	onLimit func()
}

func (s *fakeSource) Telemetry(context.Context) (model.Telemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.limit > 0 && s.calls == s.limit && s.onLimit != nil {
		s.onLimit()
	}
	return s.tel, s.err
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func chargingAt(amps int) model.ChargeState {
	return model.ChargeState{
		ChargingState:           model.Charging,
		BatteryLevel:            50,
		ChargeLimitSOC:          90,
		ChargerActualCurrent:    amps,
		ChargeCurrentRequest:    amps,
		ChargeCurrentRequestMax: 32,
		ChargerVoltage:          240,
	}
}

func testSettings() Settings {
	s := DefaultSettings()
	s.MinimumChargingAmps = 2
	return s
}
