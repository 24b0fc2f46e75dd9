package control

import (
	"errors"

	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
)

var (
	// ErrChargerUnavailable ends a session: the charger is disconnected, the
	// battery already reached its limit or the state cannot be read.
	ErrChargerUnavailable = errors.New("charger unavailable")
	// ErrTransientUnavailable skips the current iteration.
	ErrTransientUnavailable = errors.New("temporarily unavailable")
	// ErrCommandRejected is reported by the vehicle for refused commands.
	ErrCommandRejected = vehicle.ErrCommandRejected
	// ErrSessionActive is returned when a session is already running.
	ErrSessionActive = errors.New("charging session already active")
)

// EndReason explains why a session stopped.
type EndReason int

const (
	EndNone EndReason = iota
	// EndCancelled means the session context was cancelled.
	EndCancelled
	// EndSafety means the not-charging limit was reached.
	EndSafety
	// EndFailure means the charger became unavailable.
	EndFailure
)

func (r EndReason) String() string {
	switch r {
	case EndCancelled:
		return "cancelled"
	case EndSafety:
		return "safety_abort"
	case EndFailure:
		return "failure"
	default:
		return "running"
	}
}
