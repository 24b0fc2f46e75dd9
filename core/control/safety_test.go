package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/model"
)

func TestSafetyDrawThresholds(t *testing.T) {
	s := NewSafety(DefaultSettings())
	maxDraw, sustained := s.DrawExceeded(6)
	assert.True(t, maxDraw)
	assert.False(t, sustained)

	maxDraw, sustained = s.DrawExceeded(2)
	assert.False(t, maxDraw)
	assert.True(t, sustained)

	maxDraw, sustained = s.DrawExceeded(0.5)
	assert.False(t, maxDraw)
	assert.False(t, sustained)
}

func TestSafetySustainedDrawStopsOnceAndResets(t *testing.T) {
	s := NewSafety(DefaultSettings())
	stops := 0
	for i := 0; i < 5; i++ {
		v := s.Track(time.Minute, true, true)
		if v.SustainedStop {
			stops++
			assert.Equal(t, 5*time.Minute, v.Sustained)
		}
	}
	assert.Equal(t, 1, stops)

	v := s.Track(time.Minute, true, true)
	assert.False(t, v.SustainedStop)
	assert.Equal(t, time.Minute, v.Sustained)

	v = s.Track(time.Minute, false, true)
	assert.Zero(t, v.Sustained)
}

func TestSafetySustainedDrawReportsEveryFiveMinutes(t *testing.T) {
	settings := DefaultSettings()
	settings.SustainedDrawDuration = 20 * time.Minute
	s := NewSafety(settings)

	var reported []time.Duration
	for i := 0; i < 12; i++ {
		v := s.Track(time.Minute, true, true)
		if v.DrawReport {
			reported = append(reported, v.Sustained)
		}
	}
	assert.Equal(t, []time.Duration{time.Minute, 5 * time.Minute, 10 * time.Minute}, reported)

	assert.False(t, s.Track(time.Minute, false, true).DrawReport)
	assert.True(t, s.Track(time.Minute, true, true).DrawReport, "a new draw episode reports at once")
}

func TestSafetyNotChargingEndsSession(t *testing.T) {
	s := NewSafety(DefaultSettings())
	v := s.Track(10*time.Minute, false, false)
	assert.True(t, v.Report)
	assert.False(t, v.EndSession)

	v = s.Track(time.Minute, false, false)
	assert.False(t, v.Report)

	v = s.Track(10*time.Minute, false, true)
	assert.Zero(t, v.NotCharging)

	for i := 0; i < 2; i++ {
		assert.False(t, s.Track(10*time.Minute, false, false).EndSession)
	}
	v = s.Track(10*time.Minute, false, false)
	assert.True(t, v.EndSession)
	assert.Equal(t, 30*time.Minute, v.NotCharging)
}

func TestStatsWindow(t *testing.T) {
	w := newStatsWindow(10 * time.Minute)
	w.add(1, 10)
	require.True(t, w.due(time.Second), "first report is due immediately")
	ev := w.flush(model.ChargeState{BatteryLevel: 60, ChargeLimitSOC: 80}, "s1", time.Unix(0, 0))
	assert.Equal(t, 1, ev.Samples)
	assert.InDelta(t, 1.0, ev.GridMeanKW, 1e-9)
	assert.Equal(t, 60, ev.BatteryLevel)

	w.add(1, 10)
	w.add(3, 20)
	assert.False(t, w.due(5*time.Minute))
	assert.False(t, w.due(5*time.Minute))
	assert.True(t, w.due(time.Second))
	ev = w.flush(model.ChargeState{}, "s1", time.Unix(0, 0))
	assert.Equal(t, 2, ev.Samples)
	assert.InDelta(t, 2.0, ev.GridMeanKW, 1e-9)
	assert.InDelta(t, 1.41421356, ev.GridStdDevKW, 1e-6)
	assert.InDelta(t, 15.0, ev.AmpsMean, 1e-9)
	assert.IsType(t, events.StatsEvent{}, ev)
}
