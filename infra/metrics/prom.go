package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	coremetrics "github.com/drgrieve/TeslaChargingManager/core/metrics"
)

// PromSink records charging events in Prometheus metrics.
type PromSink struct {
	solar       prometheus.Gauge
	load        prometheus.Gauge
	grid        prometheus.Gauge
	buffer      prometheus.Gauge
	amps        prometheus.Gauge
	battery     prometheus.Gauge
	limit       prometheus.Gauge
	loop        prometheus.Histogram
	commands    *prometheus.CounterVec
	safety      *prometheus.CounterVec
	sessions    *prometheus.CounterVec
	active      prometheus.Gauge
	tripStage   prometheus.Gauge
	gridMean    prometheus.Gauge
	gridStdDev  prometheus.Gauge
	energyAdded prometheus.Gauge
}

// NewPromSink registers charging metrics on the default Prometheus registerer.
// Serve them with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&s.solar, "tcm_solar_kw", "Solar generation in kW"},
		{&s.load, "tcm_load_kw", "Site consumption in kW"},
		{&s.grid, "tcm_grid_kw", "Grid power in kW, negative when exporting"},
		{&s.buffer, "tcm_buffer_kw", "Current charge curve buffer in kW"},
		{&s.amps, "tcm_charging_amps", "Charging current reported by the vehicle"},
		{&s.battery, "tcm_battery_level_percent", "Vehicle battery level"},
		{&s.limit, "tcm_charge_limit_percent", "Vehicle charge limit"},
		{&s.active, "tcm_session_active", "1 while a charging session runs"},
		{&s.tripStage, "tcm_trip_stage", "Current trip planner stage, 0 when idle"},
		{&s.gridMean, "tcm_grid_mean_kw", "Mean grid power over the last stats window"},
		{&s.gridStdDev, "tcm_grid_stddev_kw", "Grid power standard deviation over the last stats window"},
		{&s.energyAdded, "tcm_energy_added_kwh", "Energy added in the current charge"},
	}
	for _, g := range gauges {
		got, err := register(reg, gauge(g.name, g.help))
		if err != nil {
			return nil, err
		}
		*g.dst = got
	}
	var err error
	if s.loop, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tcm_loop_duration_seconds",
		Help:    "Sleep between control loop iterations",
		Buckets: []float64{5, 10, 15, 20, 30, 45, 60, 90, 120},
	})); err != nil {
		return nil, err
	}
	if s.commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tcm_commands_total",
		Help: "Commands sent to the vehicle",
	}, []string{"command", "result"})); err != nil {
		return nil, err
	}
	if s.safety, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tcm_safety_events_total",
		Help: "Safety rule activations",
	}, []string{"kind", "action"})); err != nil {
		return nil, err
	}
	if s.sessions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tcm_sessions_total",
		Help: "Charging session transitions",
	}, []string{"phase", "reason"})); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordStatus updates the power and vehicle gauges.
func (s *PromSink) RecordStatus(ev events.StatusEvent) error {
	s.solar.Set(ev.SolarKW)
	s.load.Set(ev.LoadKW)
	s.grid.Set(ev.GridKW)
	s.buffer.Set(ev.BufferKW)
	s.amps.Set(float64(ev.Amps))
	s.battery.Set(float64(ev.BatteryLevel))
	s.limit.Set(float64(ev.ChargeLimit))
	if ev.LoopDuration > 0 {
		s.loop.Observe(ev.LoopDuration.Seconds())
	}
	return nil
}

// RecordCommand counts commands by outcome.
func (s *PromSink) RecordCommand(ev events.CommandEvent) error {
	result := "ok"
	if ev.Err != nil {
		result = "error"
	}
	s.commands.WithLabelValues(ev.Name, result).Inc()
	return nil
}

// RecordSafety counts safety activations.
func (s *PromSink) RecordSafety(ev events.SafetyEvent) error {
	s.safety.WithLabelValues(string(ev.Kind), ev.Action).Inc()
	return nil
}

// RecordSession tracks the active session gauge.
func (s *PromSink) RecordSession(ev events.SessionEvent) error {
	s.sessions.WithLabelValues(ev.Phase, ev.Reason).Inc()
	switch ev.Phase {
	case events.SessionStarted:
		s.active.Set(1)
	case events.SessionEnded:
		s.active.Set(0)
	}
	return nil
}

// RecordTripStage sets the trip stage gauge.
func (s *PromSink) RecordTripStage(ev events.TripStageEvent) error {
	s.tripStage.Set(float64(ev.Stage))
	return nil
}

// RecordStats sets the window gauges.
func (s *PromSink) RecordStats(ev events.StatsEvent) error {
	s.gridMean.Set(ev.GridMeanKW)
	s.gridStdDev.Set(ev.GridStdDevKW)
	s.energyAdded.Set(ev.EnergyAddedKWh)
	return nil
}

var _ coremetrics.MetricsSink = (*PromSink)(nil)
