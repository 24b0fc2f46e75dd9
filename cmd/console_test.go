package cmd

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgrieve/TeslaChargingManager/app"
	"github.com/drgrieve/TeslaChargingManager/core/control"
	"github.com/drgrieve/TeslaChargingManager/core/model"
)

type fakeService struct {
	mu          sync.Mutex
	preflight   error
	limits      []int
	tripStarted chan struct{}
	stops       int
}

func (f *fakeService) Preflight(context.Context) error { return f.preflight }
func (f *fakeService) Charge(context.Context, string) (*control.Session, error) {
	return nil, control.ErrSessionActive
}
func (f *fakeService) Trip(ctx context.Context, _ time.Duration, _ int) error {
	close(f.tripStarted)
	<-ctx.Done()
	return nil
}
func (f *fakeService) Limit(_ context.Context, pct int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, pct)
	return nil
}
func (f *fakeService) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return false
}
func (f *fakeService) Status(context.Context) (app.Status, error) {
	return app.Status{
		Telemetry: model.Telemetry{SolarKW: 4, LoadKW: 1, GridKW: -3},
		Charge:    &model.ChargeState{ChargingState: model.Charging, BatteryLevel: 55, ChargeLimitSOC: 80, ChargerActualCurrent: 12},
	}, nil
}
func (f *fakeService) Curves() []model.ChargeCurve {
	return []model.ChargeCurve{{Name: "Solar", Points: []model.ChargePoint{{SOC: 100, Buffer: 0.5}}}}
}

// syncBuffer guards output written from the trip goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConsoleCommands(t *testing.T) {
	svc := &fakeService{tripStarted: make(chan struct{})}
	out := &syncBuffer{}
	c := newConsole(context.Background(), svc, out)

	assert.True(t, c.exec(""))
	assert.True(t, c.exec("/limit 85"))
	assert.True(t, c.exec("/limit 150"))
	assert.True(t, c.exec("/status"))
	assert.True(t, c.exec("/curves"))
	assert.True(t, c.exec("/charge Solar"))
	assert.True(t, c.exec("/bogus"))
	assert.False(t, c.exec("/quit"))

	assert.Equal(t, []int{85}, svc.limits)
	s := out.String()
	assert.Contains(t, s, "charge limit set to 85%")
	assert.Contains(t, s, `invalid percentage "150"`)
	assert.Contains(t, s, "solar 4.00 kW")
	assert.Contains(t, s, "vehicle Charging 55% of 80%")
	assert.Contains(t, s, "Solar")
	assert.Contains(t, s, "charging session already active")
	assert.Contains(t, s, "unknown command /bogus")
}

func TestConsolePreflightFailure(t *testing.T) {
	svc := &fakeService{preflight: errors.New("no solar generation"), tripStarted: make(chan struct{})}
	out := &syncBuffer{}
	c := newConsole(context.Background(), svc, out)
	c.exec("/trip 2 80")
	assert.Contains(t, out.String(), "preflight failed: no solar generation")
	assert.False(t, c.tripRunning())
}

func TestConsoleTripAndStop(t *testing.T) {
	svc := &fakeService{tripStarted: make(chan struct{})}
	out := &syncBuffer{}
	c := newConsole(context.Background(), svc, out)

	c.exec("/trip 1.5 80")
	select {
	case <-svc.tripStarted:
	case <-time.After(time.Second):
		t.Fatalf("trip not started")
	}
	require.True(t, c.tripRunning())
	c.exec("/charge")
	assert.Contains(t, out.String(), "a trip is running")

	c.exec("/stop")
	assert.False(t, c.tripRunning())
	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("trip ended"))
	}, time.Second, 10*time.Millisecond)
	c.exec("/stop")
	assert.Contains(t, out.String(), "nothing to stop")
}

func TestParseTripArgs(t *testing.T) {
	in, pct, err := parseTripArgs([]string{"1.5", "80"})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, in)
	assert.Equal(t, 80, pct)

	for _, args := range [][]string{{"1"}, {"x", "80"}, {"-1", "80"}, {"2", "0"}, {"2", "101"}} {
		_, _, err := parseTripArgs(args)
		assert.Error(t, err, args)
	}
}

func TestParseTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got, err := parseTime("2h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), got)

	got, err = parseTime("2024-04-30T08:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC), got)

	got, err = parseTime("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseTime("yesterday", now)
	assert.Error(t, err)
}

func TestMarshalCurves(t *testing.T) {
	out, err := marshalCurves("Solar", []model.ChargeCurve{{Name: "Solar", Points: []model.ChargePoint{{SOC: 80, Buffer: 0.5}}}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "default: Solar")
	assert.Contains(t, string(out), "soc: 80")
	assert.Contains(t, string(out), "buffer: 0.5")
}
