package control

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/model"
)

// statsWindow collects grid and amps samples between stats reports. The
// first report is due on the first iteration.
type statsWindow struct {
	interval time.Duration
	elapsed  time.Duration
	grid     []float64
	amps     []float64
}

func newStatsWindow(interval time.Duration) *statsWindow {
	return &statsWindow{interval: interval, elapsed: interval}
}

func (w *statsWindow) add(gridKW float64, amps int) {
	w.grid = append(w.grid, gridKW)
	w.amps = append(w.amps, float64(amps))
}

// due reports whether a report must be emitted, advancing the window
// otherwise.
func (w *statsWindow) due(elapsed time.Duration) bool {
	if w.interval <= 0 {
		return false
	}
	if w.elapsed >= w.interval {
		w.elapsed = 0
		return true
	}
	w.elapsed += elapsed
	return false
}

// flush summarises the window and starts a new one.
func (w *statsWindow) flush(st model.ChargeState, sessionID string, now time.Time) events.StatsEvent {
	ev := events.StatsEvent{
		SessionID:       sessionID,
		BatteryLevel:    st.BatteryLevel,
		ChargeLimit:     st.ChargeLimitSOC,
		RangeKm:         st.RangeKm(),
		FullRangeKm:     st.FullRangeKm(),
		EnergyAddedKWh:  st.ChargeEnergyAdded,
		TimeToFullHours: st.TimeToFullCharge,
		Samples:         len(w.grid),
		Time:            now,
	}
	switch {
	case len(w.grid) > 1:
		ev.GridMeanKW, ev.GridStdDevKW = stat.MeanStdDev(w.grid, nil)
		ev.AmpsMean = stat.Mean(w.amps, nil)
	case len(w.grid) == 1:
		ev.GridMeanKW = w.grid[0]
		ev.AmpsMean = w.amps[0]
	}
	w.grid = w.grid[:0]
	w.amps = w.amps[:0]
	return ev
}
