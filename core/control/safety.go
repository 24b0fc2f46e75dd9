package control

import "time"

// progressEvery is the interval for sustained-draw and not-charging progress
// reports.
const progressEvery = 300 * time.Second

// Verdict is the result of feeding one iteration to Safety.
type Verdict struct {
	// SustainedStop requests a single stop; the timer has been reset.
	SustainedStop bool
	Sustained     time.Duration
	// EndSession requests termination of the loop.
	EndSession  bool
	NotCharging time.Duration
	// Report is set when the not-charging timer crossed a progress mark.
	Report bool
	// DrawReport is set when the sustained-draw timer started or crossed a
	// progress mark.
	DrawReport bool
}

// Safety tracks the sustained-draw and not-charging timers of a session.
type Safety struct {
	settings    Settings
	sustained   time.Duration
	notCharging time.Duration
}

// NewSafety returns a monitor with both timers at zero.
func NewSafety(settings Settings) *Safety {
	return &Safety{settings: settings}
}

// DrawExceeded classifies an unadjusted import while charging: maxDraw
// reports an immediate stop, sustained starts or continues the sustained timer.
func (s *Safety) DrawExceeded(gridKW float64) (maxDraw, sustained bool) {
	if gridKW > s.settings.GridMaxDraw {
		return true, false
	}
	return false, gridKW > s.settings.GridMaxSustainedDraw
}

// Track advances both timers by elapsed.
func (s *Safety) Track(elapsed time.Duration, sustainedDraw, charging bool) Verdict {
	var v Verdict
	prevDraw := s.sustained
	if sustainedDraw {
		s.sustained += elapsed
	} else {
		s.sustained = 0
	}
	v.Sustained = s.sustained
	v.DrawReport = s.sustained > 0 && (prevDraw == 0 || s.sustained/progressEvery > prevDraw/progressEvery)
	if s.sustained > 0 && s.sustained >= s.settings.SustainedDrawDuration {
		v.SustainedStop = true
		s.sustained = 0
	}

	prev := s.notCharging
	if charging {
		s.notCharging = 0
	} else {
		s.notCharging += elapsed
	}
	v.NotCharging = s.notCharging
	if s.notCharging >= s.settings.NotChargingDuration {
		v.EndSession = true
	}
	v.Report = s.notCharging > 0 && s.notCharging/progressEvery > prev/progressEvery
	return v
}
