package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/logger"
	"github.com/drgrieve/TeslaChargingManager/internal/eventbus"
)

// messagePublisher is implemented by Client.
type messagePublisher interface {
	Publish(topic, kind string, retained bool, payload []byte) error
}

// Publisher mirrors control loop events onto MQTT topics below a prefix:
// status, command, safety, session, trip and stats.
type Publisher struct {
	client messagePublisher
	prefix string
	retain bool
	log    logger.Logger
}

// NewPublisher returns a Publisher writing through client.
func NewPublisher(client messagePublisher, cfg Config, log logger.Logger) *Publisher {
	return &Publisher{client: client, prefix: cfg.Prefix(), retain: cfg.Retain, log: log}
}

// envelope wraps every message.
type envelope struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type statusMessage struct {
	SessionID    string  `json:"session_id"`
	Curve        string  `json:"curve"`
	SolarKW      float64 `json:"solar_kw"`
	LoadKW       float64 `json:"load_kw"`
	GridKW       float64 `json:"grid_kw"`
	BufferKW     float64 `json:"buffer_kw"`
	State        string  `json:"charging_state"`
	BatteryLevel int     `json:"battery_level"`
	ChargeLimit  int     `json:"charge_limit_soc"`
	Amps         int     `json:"amps"`
	LoopSeconds  float64 `json:"loop_seconds"`
}

type commandMessage struct {
	SessionID string `json:"session_id,omitempty"`
	Name      string `json:"name"`
	Amps      int    `json:"amps,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

type safetyMessage struct {
	SessionID      string  `json:"session_id"`
	Kind           string  `json:"kind"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	LimitSeconds   float64 `json:"limit_seconds"`
	GridKW         float64 `json:"grid_kw"`
	Action         string  `json:"action"`
}

type sessionMessage struct {
	SessionID string `json:"session_id"`
	Curve     string `json:"curve"`
	Mode      string `json:"mode"`
	Phase     string `json:"phase"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

type tripMessage struct {
	Stage            int       `json:"stage"`
	TargetSOC        int       `json:"target_soc"`
	BatteryLevel     int       `json:"battery_level"`
	ProjectedMinutes float64   `json:"projected_minutes"`
	RemainingMinutes float64   `json:"remaining_minutes"`
	Deadline         time.Time `json:"deadline"`
}

type statsMessage struct {
	SessionID       string  `json:"session_id"`
	BatteryLevel    int     `json:"battery_level"`
	ChargeLimit     int     `json:"charge_limit_soc"`
	RangeKm         float64 `json:"range_km"`
	FullRangeKm     float64 `json:"full_range_km"`
	EnergyAddedKWh  float64 `json:"energy_added_kwh"`
	TimeToFullHours float64 `json:"time_to_full_hours"`
	GridMeanKW      float64 `json:"grid_mean_kw"`
	GridStdDevKW    float64 `json:"grid_stddev_kw"`
	AmpsMean        float64 `json:"amps_mean"`
	Samples         int     `json:"samples"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Run publishes bus events until ctx is done or the bus closes.
func (p *Publisher) Run(ctx context.Context, bus eventbus.EventBus) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := p.Handle(ev); err != nil {
				p.log.Warnf("mqtt publish: %v", err)
			}
		}
	}
}

// Handle publishes one event. Unknown events are ignored.
func (p *Publisher) Handle(ev eventbus.Event) error {
	var (
		kind     string
		retained bool
		at       time.Time
		data     any
	)
	switch e := ev.(type) {
	case events.StatusEvent:
		kind, retained, at = "status", p.retain, e.Time
		data = statusMessage{
			SessionID: e.SessionID, Curve: e.Curve,
			SolarKW: e.SolarKW, LoadKW: e.LoadKW, GridKW: e.GridKW, BufferKW: e.BufferKW,
			State: e.State.String(), BatteryLevel: e.BatteryLevel, ChargeLimit: e.ChargeLimit,
			Amps: e.Amps, LoopSeconds: e.LoopDuration.Seconds(),
		}
	case events.CommandEvent:
		kind, at = "command", e.Time
		data = commandMessage{SessionID: e.SessionID, Name: e.Name, Amps: e.Amps, Reason: e.Reason, Error: errString(e.Err)}
	case events.SafetyEvent:
		kind, at = "safety", e.Time
		data = safetyMessage{
			SessionID: e.SessionID, Kind: string(e.Kind),
			ElapsedSeconds: e.Elapsed.Seconds(), LimitSeconds: e.Limit.Seconds(),
			GridKW: e.GridKW, Action: e.Action,
		}
	case events.SessionEvent:
		kind, retained, at = "session", true, e.Time
		data = sessionMessage{SessionID: e.SessionID, Curve: e.Curve, Mode: e.Mode, Phase: e.Phase, Reason: e.Reason, Error: errString(e.Err)}
	case events.TripStageEvent:
		kind, retained, at = "trip", true, e.Time
		data = tripMessage{
			Stage: e.Stage, TargetSOC: e.TargetSOC, BatteryLevel: e.BatteryLevel,
			ProjectedMinutes: e.ProjectedMinutes, RemainingMinutes: e.RemainingMinutes, Deadline: e.Deadline,
		}
	case events.StatsEvent:
		kind, retained, at = "stats", p.retain, e.Time
		data = statsMessage{
			SessionID: e.SessionID, BatteryLevel: e.BatteryLevel, ChargeLimit: e.ChargeLimit,
			RangeKm: e.RangeKm, FullRangeKm: e.FullRangeKm, EnergyAddedKWh: e.EnergyAddedKWh,
			TimeToFullHours: e.TimeToFullHours, GridMeanKW: e.GridMeanKW, GridStdDevKW: e.GridStdDevKW,
			AmpsMean: e.AmpsMean, Samples: e.Samples,
		}
	default:
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := json.Marshal(envelope{ID: uuid.NewString(), Type: kind, Time: at, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return p.client.Publish(p.prefix+"/"+kind, kind, retained, payload)
}
