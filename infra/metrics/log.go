package metrics

import (
	"sync/atomic"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	corelogger "github.com/drgrieve/TeslaChargingManager/core/logger"
	"github.com/drgrieve/TeslaChargingManager/infra/logger"
)

// LogConfig configures the log sink.
type LogConfig struct {
	// StatusEvery logs one in n status events. Zero or one logs them all.
	StatusEvery int `json:"status_every"`
}

// LogSink writes charging events to the structured log. It suits headless
// installs without a metrics backend.
type LogSink struct {
	log   logger.Logger
	every uint64
	seen  atomic.Uint64
}

// NewLogSink returns a sink writing to log.
func NewLogSink(cfg LogConfig, log logger.Logger) *LogSink {
	every := uint64(1)
	if cfg.StatusEvery > 1 {
		every = uint64(cfg.StatusEvery)
	}
	return &LogSink{log: log, every: every}
}

func (s *LogSink) RecordStatus(ev events.StatusEvent) error {
	if (s.seen.Add(1)-1)%s.every != 0 {
		return nil
	}
	s.log.Debugw("status", corelogger.Fields{
		"session":  ev.SessionID,
		"solar_kw": ev.SolarKW,
		"grid_kw":  ev.GridKW,
		"buffer":   ev.BufferKW,
		"amps":     ev.Amps,
		"battery":  ev.BatteryLevel,
	})
	return nil
}

func (s *LogSink) RecordCommand(ev events.CommandEvent) error {
	if ev.Err != nil {
		s.log.Warnf("command %s (%s) failed: %v", ev.Name, ev.Reason, ev.Err)
		return nil
	}
	s.log.Infof("command %s %dA (%s)", ev.Name, ev.Amps, ev.Reason)
	return nil
}

func (s *LogSink) RecordSafety(ev events.SafetyEvent) error {
	s.log.Infof("safety %s %s after %s", ev.Kind, ev.Action, ev.Elapsed)
	return nil
}

func (s *LogSink) RecordSession(ev events.SessionEvent) error {
	s.log.Infof("session %s %s on %s", ev.SessionID, ev.Phase, ev.Curve)
	return nil
}

func (s *LogSink) RecordTripStage(ev events.TripStageEvent) error {
	s.log.Infof("trip stage %d, %.1f of %.1f minutes needed", ev.Stage, ev.ProjectedMinutes, ev.RemainingMinutes)
	return nil
}

func (s *LogSink) RecordStats(ev events.StatsEvent) error {
	s.log.Infof("stats battery %d/%d grid mean %.2fkW", ev.BatteryLevel, ev.ChargeLimit, ev.GridMeanKW)
	return nil
}
