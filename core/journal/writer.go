package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/logger"
	"github.com/drgrieve/TeslaChargingManager/internal/eventbus"
)

// StatusPayload is stored for KindStatus records.
type StatusPayload struct {
	Curve        string  `json:"curve"`
	SolarKW      float64 `json:"solar_kw"`
	LoadKW       float64 `json:"load_kw"`
	GridKW       float64 `json:"grid_kw"`
	BufferKW     float64 `json:"buffer_kw"`
	State        string  `json:"charging_state"`
	BatteryLevel int     `json:"battery_level"`
	ChargeLimit  int     `json:"charge_limit"`
	Amps         int     `json:"amps"`
	LoopSeconds  float64 `json:"loop_seconds"`
}

// CommandPayload is stored for KindCommand records.
type CommandPayload struct {
	Name   string `json:"name"`
	Amps   int    `json:"amps,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SafetyPayload is stored for KindSafety records.
type SafetyPayload struct {
	Kind           string  `json:"kind"`
	Action         string  `json:"action"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	LimitSeconds   float64 `json:"limit_seconds"`
	GridKW         float64 `json:"grid_kw"`
}

// SessionPayload is stored for KindSession records.
type SessionPayload struct {
	Curve  string `json:"curve"`
	Mode   string `json:"mode"`
	Phase  string `json:"phase"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TripPayload is stored for KindTrip records.
type TripPayload struct {
	Stage            int       `json:"stage"`
	TargetSOC        int       `json:"target_soc"`
	BatteryLevel     int       `json:"battery_level"`
	ProjectedMinutes float64   `json:"projected_minutes"`
	RemainingMinutes float64   `json:"remaining_minutes"`
	Deadline         time.Time `json:"deadline"`
}

// StatsPayload is stored for KindStats records.
type StatsPayload struct {
	BatteryLevel    int     `json:"battery_level"`
	ChargeLimit     int     `json:"charge_limit"`
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

// FromEvent converts a bus event into a record. Unknown events return false.
func FromEvent(ev eventbus.Event) (Record, bool, error) {
	var (
		rec     Record
		payload any
	)
	switch e := ev.(type) {
	case events.StatusEvent:
		rec = Record{Timestamp: e.Time, SessionID: e.SessionID, Kind: KindStatus}
		payload = StatusPayload{
			Curve: e.Curve, SolarKW: e.SolarKW, LoadKW: e.LoadKW, GridKW: e.GridKW, BufferKW: e.BufferKW,
			State: e.State.String(), BatteryLevel: e.BatteryLevel, ChargeLimit: e.ChargeLimit, Amps: e.Amps,
			LoopSeconds: e.LoopDuration.Seconds(),
		}
	case events.CommandEvent:
		rec = Record{Timestamp: e.Time, SessionID: e.SessionID, Kind: KindCommand}
		payload = CommandPayload{Name: e.Name, Amps: e.Amps, Reason: e.Reason, Error: errString(e.Err)}
	case events.SafetyEvent:
		rec = Record{Timestamp: e.Time, SessionID: e.SessionID, Kind: KindSafety}
		payload = SafetyPayload{
			Kind: string(e.Kind), Action: e.Action, GridKW: e.GridKW,
			ElapsedSeconds: e.Elapsed.Seconds(), LimitSeconds: e.Limit.Seconds(),
		}
	case events.SessionEvent:
		rec = Record{Timestamp: e.Time, SessionID: e.SessionID, Kind: KindSession}
		payload = SessionPayload{Curve: e.Curve, Mode: e.Mode, Phase: e.Phase, Reason: e.Reason, Error: errString(e.Err)}
	case events.TripStageEvent:
		rec = Record{Timestamp: e.Time, Kind: KindTrip}
		payload = TripPayload{
			Stage: e.Stage, TargetSOC: e.TargetSOC, BatteryLevel: e.BatteryLevel,
			ProjectedMinutes: e.ProjectedMinutes, RemainingMinutes: e.RemainingMinutes, Deadline: e.Deadline,
		}
	case events.StatsEvent:
		rec = Record{Timestamp: e.Time, SessionID: e.SessionID, Kind: KindStats}
		payload = StatsPayload{
			BatteryLevel: e.BatteryLevel, ChargeLimit: e.ChargeLimit, RangeKm: e.RangeKm, FullRangeKm: e.FullRangeKm,
			EnergyAddedKWh: e.EnergyAddedKWh, TimeToFullHours: e.TimeToFullHours,
			GridMeanKW: e.GridMeanKW, GridStdDevKW: e.GridStdDevKW, AmpsMean: e.AmpsMean, Samples: e.Samples,
		}
	default:
		return Record{}, false, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Record{}, false, err
	}
	rec.Payload = b
	return rec, true, nil
}

// Writer appends bus events to a Store.
type Writer struct {
	store       Store
	log         logger.Logger
	statusEvery int
	now         func() time.Time

	seen map[string]int
}

// NewWriter keeps one status record in statusEvery per session. Other kinds
// are always written.
func NewWriter(store Store, log logger.Logger, statusEvery int) *Writer {
	if statusEvery <= 0 {
		statusEvery = 1
	}
	return &Writer{store: store, log: log, statusEvery: statusEvery, now: time.Now, seen: make(map[string]int)}
}

// Run consumes events until ctx is cancelled or the bus closes.
func (w *Writer) Run(ctx context.Context, bus eventbus.EventBus) {
	sub := bus.SubscribeSize(256)
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := w.Handle(ctx, ev); err != nil {
				w.log.Warnf("journal append failed: %v", err)
			}
		}
	}
}

// Handle writes a single event.
func (w *Writer) Handle(ctx context.Context, ev eventbus.Event) error {
	rec, ok, err := FromEvent(ev)
	if err != nil || !ok {
		return err
	}
	switch rec.Kind {
	case KindStatus:
		n := w.seen[rec.SessionID]
		w.seen[rec.SessionID] = n + 1
		if n%w.statusEvery != 0 {
			return nil
		}
	case KindSession:
		if ev.(events.SessionEvent).Phase == events.SessionEnded {
			delete(w.seen, rec.SessionID)
		}
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.now()
	}
	return w.store.Append(ctx, rec)
}
