package metrics

import "github.com/drgrieve/TeslaChargingManager/core/events"

// MetricsSink records control loop iterations.
type MetricsSink interface {
	RecordStatus(ev events.StatusEvent) error
}

// CommandRecorder records commands sent to the vehicle.
type CommandRecorder interface {
	RecordCommand(ev events.CommandEvent) error
}

// SafetyRecorder records safety rule activations.
type SafetyRecorder interface {
	RecordSafety(ev events.SafetyEvent) error
}

// SessionRecorder records session start and end.
type SessionRecorder interface {
	RecordSession(ev events.SessionEvent) error
}

// TripStageRecorder records trip planner stage changes.
type TripStageRecorder interface {
	RecordTripStage(ev events.TripStageEvent) error
}

// StatsRecorder records periodic statistics.
type StatsRecorder interface {
	RecordStats(ev events.StatsEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordStatus(events.StatusEvent) error       { return nil }
func (NopSink) RecordCommand(events.CommandEvent) error     { return nil }
func (NopSink) RecordSafety(events.SafetyEvent) error       { return nil }
func (NopSink) RecordSession(events.SessionEvent) error     { return nil }
func (NopSink) RecordTripStage(events.TripStageEvent) error { return nil }
func (NopSink) RecordStats(events.StatsEvent) error         { return nil }
