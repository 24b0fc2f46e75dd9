package metrics

import (
	"context"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	coremetrics "github.com/drgrieve/TeslaChargingManager/core/metrics"
	"github.com/drgrieve/TeslaChargingManager/infra/logger"
	"github.com/drgrieve/TeslaChargingManager/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	log := logger.New("metrics")
	sub := bus.SubscribeSize(64)
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.StatusEvent:
		return sink.RecordStatus(e)
	case events.CommandEvent:
		if r, ok := sink.(coremetrics.CommandRecorder); ok {
			return r.RecordCommand(e)
		}
	case events.SafetyEvent:
		if r, ok := sink.(coremetrics.SafetyRecorder); ok {
			return r.RecordSafety(e)
		}
	case events.SessionEvent:
		if r, ok := sink.(coremetrics.SessionRecorder); ok {
			return r.RecordSession(e)
		}
	case events.TripStageEvent:
		if r, ok := sink.(coremetrics.TripStageRecorder); ok {
			return r.RecordTripStage(e)
		}
	case events.StatsEvent:
		if r, ok := sink.(coremetrics.StatsRecorder); ok {
			return r.RecordStats(e)
		}
	}
	return nil
}
