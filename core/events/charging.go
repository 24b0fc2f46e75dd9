package events

import (
	"fmt"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/model"
)

// StatusEvent is published once per control iteration.
type StatusEvent struct {
	SessionID    string
	Curve        string
	SolarKW      float64
	LoadKW       float64
	GridKW       float64
	BufferKW     float64
	State        model.ChargingState
	BatteryLevel int
	ChargeLimit  int
	Amps         int
	LoopDuration time.Duration
	Time         time.Time
}

func (s StatusEvent) String() string {
	return fmt.Sprintf("Solar:%.2f Home:%.2f Grid:%.2f Buffer:%.2f", s.SolarKW, s.LoadKW, s.GridKW, s.BufferKW)
}

// Command names used in CommandEvent.
const (
	CommandSetAmps  = "set_charging_amps"
	CommandStart    = "charge_start"
	CommandStop     = "charge_stop"
	CommandSetLimit = "set_charge_limit"
)

// CommandEvent records a command sent to the vehicle.
type CommandEvent struct {
	SessionID string
	Name      string
	Amps      int
	Reason    string
	Err       error
	Time      time.Time
}

// SafetyKind identifies the safety rule that fired.
type SafetyKind string

const (
	SafetyMaxDraw       SafetyKind = "max_draw"
	SafetySustainedDraw SafetyKind = "sustained_draw"
	SafetyNotCharging   SafetyKind = "not_charging"
)

// SafetyEvent is published when a safety threshold is reached. Action is
// "stop", "suppressed", "skipped" or "end_session".
type SafetyEvent struct {
	SessionID string
	Kind      SafetyKind
	Elapsed   time.Duration
	Limit     time.Duration
	GridKW    float64
	Action    string
	Time      time.Time
}

// Session phases.
const (
	SessionStarted = "started"
	SessionEnded   = "ended"
)

// SessionEvent marks the start and the end of a control session.
type SessionEvent struct {
	SessionID string
	Curve     string
	Mode      string
	Phase     string
	Reason    string
	Err       error
	Time      time.Time
}

// TripStageEvent is published when the trip planner enters a stage.
type TripStageEvent struct {
	Stage            int
	TargetSOC        int
	BatteryLevel     int
	ProjectedMinutes float64
	RemainingMinutes float64
	Deadline         time.Time
	Time             time.Time
}

// StatsEvent summarises the battery and the grid over a stats window.
type StatsEvent struct {
	SessionID       string
	BatteryLevel    int
	ChargeLimit     int
	RangeKm         float64
	FullRangeKm     float64
	EnergyAddedKWh  float64
	TimeToFullHours float64
	GridMeanKW      float64
	GridStdDevKW    float64
	AmpsMean        float64
	Samples         int
	Time            time.Time
}
