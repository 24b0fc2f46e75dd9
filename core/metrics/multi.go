package metrics

import "github.com/drgrieve/TeslaChargingManager/core/events"

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordStatus forwards the status to all sinks, returning the first error encountered.
func (m *MultiSink) RecordStatus(ev events.StatusEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordStatus(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordCommand forwards command events.
func (m *MultiSink) RecordCommand(ev events.CommandEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(CommandRecorder); ok {
			if err := rec.RecordCommand(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSafety forwards safety events.
func (m *MultiSink) RecordSafety(ev events.SafetyEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SafetyRecorder); ok {
			if err := rec.RecordSafety(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSession forwards session events.
func (m *MultiSink) RecordSession(ev events.SessionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SessionRecorder); ok {
			if err := rec.RecordSession(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTripStage forwards trip stage events.
func (m *MultiSink) RecordTripStage(ev events.TripStageEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TripStageRecorder); ok {
			if err := rec.RecordTripStage(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordStats forwards stats events.
func (m *MultiSink) RecordStats(ev events.StatsEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(StatsRecorder); ok {
			if err := rec.RecordStats(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
