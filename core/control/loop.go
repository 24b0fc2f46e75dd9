package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/logger"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/monitoring"
	"github.com/drgrieve/TeslaChargingManager/core/power"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
	"github.com/drgrieve/TeslaChargingManager/internal/eventbus"
)

// Clock abstracts time so sessions can be driven by tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Starter starts control sessions.
type Starter interface {
	StartSession(ctx context.Context, curve model.ChargeCurve, mode Mode) (*Session, error)
}

// Loop runs the feedback control loop, one session at a time.
type Loop struct {
	source   power.Source
	client   vehicle.Client
	settings Settings
	log      logger.Logger
	bus      eventbus.EventBus
	clock    Clock
	current  atomic.Pointer[Session]
}

// NewLoop wires the loop to its telemetry source and vehicle client.
func NewLoop(source power.Source, client vehicle.Client, settings Settings, log logger.Logger, bus eventbus.EventBus) *Loop {
	return &Loop{source: source, client: client, settings: settings, log: log, bus: bus, clock: realClock{}}
}

// SetClock overrides the time source.
func (l *Loop) SetClock(c Clock) { l.clock = c }

// IsSessionActive reports whether a session is still running.
func (l *Loop) IsSessionActive() bool {
	s := l.current.Load()
	return s != nil && s.Active()
}

// Current returns the running or last session.
func (l *Loop) Current() *Session { return l.current.Load() }

// StartSession reads the charge state to seed the buffer and starts the
// loop in its own goroutine. The session runs until ctx is cancelled,
// Cancel is called or the loop ends itself.
func (l *Loop) StartSession(ctx context.Context, curve model.ChargeCurve, mode Mode) (*Session, error) {
	if l.IsSessionActive() {
		return nil, ErrSessionActive
	}
	st, err := l.client.ChargeState(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChargerUnavailable, err)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: no charge state", ErrChargerUnavailable)
	}

	sess, sctx := newSession(ctx, uuid.NewString(), curve.Name, mode)
	sess.record(*st)
	l.current.Store(sess)
	r := &runner{
		loop:    l,
		session: sess,
		calc:    NewCalculator(l.client, l.settings, l.log.With(logger.Fields{"session": sess.ID, "curve": curve.Name}), l.bus, sess.ID),
		buffer:  NewBuffer(curve, st.BatteryLevel),
		safety:  NewSafety(l.settings),
		sched:   NewScheduler(l.settings.MinLoopSleep, l.settings.MaxLoopSleep),
		stats:   newStatsWindow(l.settings.StatsInterval),
		state:   *st,
	}
	r.calc.now = l.clock.Now
	l.log.Infof("using charge curve %s in %s mode", curve.Name, mode)
	l.publish(events.SessionEvent{SessionID: sess.ID, Curve: curve.Name, Mode: mode.String(), Phase: events.SessionStarted, Time: l.clock.Now()})
	go func() {
		defer func() {
			if v := recover(); v != nil {
				monitoring.CapturePanic(v, map[string]string{"session": sess.ID})
				monitoring.Flush(2 * time.Second)
				panic(v)
			}
		}()
		reason, err := r.run(sctx)
		sess.finish(reason, err)
		ev := events.SessionEvent{SessionID: sess.ID, Curve: curve.Name, Mode: mode.String(), Phase: events.SessionEnded, Reason: reason.String(), Err: err, Time: l.clock.Now()}
		if err != nil {
			l.log.Errorf("monitor stopped due to failure: %v", err)
			monitoring.CaptureException(err, map[string]string{"session": sess.ID, "curve": curve.Name})
		} else {
			l.log.Infof("monitor stopped: %s", reason)
		}
		l.publish(ev)
	}()
	return sess, nil
}

func (l *Loop) publish(ev eventbus.Event) {
	if l.bus != nil {
		l.bus.Publish(ev)
	}
}

// Session is a handle on one run of the control loop.
type Session struct {
	ID    string
	Curve string
	Mode  Mode

	cancel context.CancelFunc
	done   chan struct{}
	active atomic.Bool
	reason EndReason
	err    error

	mu   sync.Mutex
	last *model.ChargeState
}

func newSession(parent context.Context, id, curve string, mode Mode) (*Session, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{ID: id, Curve: curve, Mode: mode, cancel: cancel, done: make(chan struct{})}
	s.active.Store(true)
	return s, ctx
}

func (s *Session) finish(reason EndReason, err error) {
	s.reason = reason
	s.err = err
	s.active.Store(false)
	s.cancel()
	close(s.done)
}

func (s *Session) record(st model.ChargeState) {
	s.mu.Lock()
	s.last = &st
	s.mu.Unlock()
}

// LastState returns a copy of the charge state the loop read most recently,
// or nil before the first read.
func (s *Session) LastState() *model.ChargeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	st := *s.last
	return &st
}

// Active reports whether the loop is still running.
func (s *Session) Active() bool { return s.active.Load() }

// Cancel asks the loop to stop. It is checked at the top of each iteration
// and while sleeping.
func (s *Session) Cancel() { s.cancel() }

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the loop exits and returns the session-ending failure,
// if any. Cancellation and safety aborts are not errors.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Reason reports why the session ended. It is valid once Done is closed.
func (s *Session) Reason() EndReason {
	select {
	case <-s.done:
		return s.reason
	default:
		return EndNone
	}
}

// runner holds the loop state of one session. It is owned by the session
// goroutine.
type runner struct {
	loop    *Loop
	session *Session
	calc    *Calculator
	buffer  *Buffer
	safety  *Safety
	sched   *Scheduler
	stats   *statsWindow
	state   model.ChargeState
	mark    time.Time
}

func (r *runner) run(ctx context.Context) (EndReason, error) {
	clock := r.loop.clock
	r.mark = clock.Now()
	for {
		if ctx.Err() != nil {
			return EndCancelled, nil
		}
		sleep, end, err := r.iterate(ctx)
		if end != EndNone {
			return end, err
		}
		select {
		case <-ctx.Done():
			return EndCancelled, nil
		case <-clock.After(sleep):
		}
	}
}

func (r *runner) iterate(ctx context.Context) (time.Duration, EndReason, error) {
	l := r.loop
	start := l.clock.Now()

	tel, err := l.source.Telemetry(ctx)
	if err != nil || tel.IsZero() {
		if err != nil {
			l.log.Warnf("telemetry not available: %v", err)
		} else {
			l.log.Warnf("telemetry not available")
		}
		return l.settings.MinLoopSleep, EndNone, nil
	}

	delta := tel.GridKW + r.buffer.Value()
	adj, err := r.calc.Apply(ctx, delta, tel.LoadKW)
	if err != nil {
		if errors.Is(err, ErrTransientUnavailable) {
			l.log.Warnf("skipping iteration: %v", err)
			return l.settings.MinLoopSleep, EndNone, nil
		}
		if ctx.Err() != nil {
			return 0, EndCancelled, nil
		}
		return 0, EndFailure, err
	}
	r.state = adj.State
	r.session.record(adj.State)
	charging := adj.State.IsCharging()

	status := events.StatusEvent{
		SessionID:    r.session.ID,
		Curve:        r.session.Curve,
		SolarKW:      tel.SolarKW,
		LoadKW:       tel.LoadKW,
		GridKW:       tel.GridKW,
		BufferKW:     r.buffer.Value(),
		State:        adj.State.ChargingState,
		BatteryLevel: adj.State.BatteryLevel,
		ChargeLimit:  adj.State.ChargeLimitSOC,
		Amps:         adj.ToAmps,
		LoopDuration: r.sched.Current(),
	}
	l.log.Infof("%s Charger:%s %dA", status, status.State, status.Amps)

	sustainedDraw := false
	if delta > 0 {
		if !adj.Adjusted && charging {
			maxDraw, sustained := r.safety.DrawExceeded(tel.GridKW)
			if maxDraw {
				r.stop(ctx, events.SafetyEvent{Kind: events.SafetyMaxDraw, GridKW: tel.GridKW})
			}
			sustainedDraw = sustained
		}
		r.sched.Reset()
		r.buffer.Reset(adj.State.BatteryLevel)
	} else if adj.Adjusted {
		r.sched.Reset()
		r.buffer.Disturb()
	} else {
		if r.buffer.Settle(r.sched.Current(), adj.State.BatteryLevel) {
			l.log.Debugf("grid buffer decayed to %.2f", r.buffer.Value())
		}
		r.sched.Idle()
	}
	now := l.clock.Now()
	status.LoopDuration = r.sched.Current()
	status.Time = now
	l.publish(status)

	elapsed := now.Sub(r.mark)
	r.mark = now
	v := r.safety.Track(elapsed, sustainedDraw, charging)
	if v.SustainedStop {
		r.stop(ctx, events.SafetyEvent{
			Kind:    events.SafetySustainedDraw,
			Elapsed: v.Sustained,
			Limit:   l.settings.SustainedDrawDuration,
			GridKW:  tel.GridKW,
		})
	} else if v.DrawReport {
		l.log.Infof("sustained draw %s/%s", v.Sustained, l.settings.SustainedDrawDuration)
	}
	if v.EndSession {
		l.log.Infof("not charging duration limit of %s reached", l.settings.NotChargingDuration)
		l.publish(events.SafetyEvent{
			SessionID: r.session.ID,
			Kind:      events.SafetyNotCharging,
			Elapsed:   v.NotCharging,
			Limit:     l.settings.NotChargingDuration,
			Action:    "end_session",
			Time:      now,
		})
		return 0, EndSafety, nil
	}
	if v.Report {
		l.log.Infof("not charging duration %s/%s", v.NotCharging, l.settings.NotChargingDuration)
	}

	r.stats.add(tel.GridKW, adj.State.ChargerActualCurrent)
	if r.stats.due(elapsed) {
		r.report(now)
	}

	return r.sched.Sleep(l.clock.Now().Sub(start)), EndNone, nil
}

// stop issues a guarded stop command for a safety rule.
func (r *runner) stop(ctx context.Context, ev events.SafetyEvent) {
	l := r.loop
	ev.SessionID = r.session.ID
	ev.Time = l.clock.Now()
	switch {
	case !l.settings.StopsAllowed(r.session.Mode):
		ev.Action = "suppressed"
		l.log.Infof("%s stop suppressed in %s mode (grid %.2fkW)", ev.Kind, r.session.Mode, ev.GridKW)
	case !r.state.IsCharging():
		ev.Action = "skipped"
		l.log.Infof("charging not stopped as vehicle is currently %s", r.state.ChargingState)
	case r.state.BatteryLevel < l.settings.MinimumStateOfCharge:
		ev.Action = "skipped"
		l.log.Infof("battery %d%% is below minimum of %d%%, charging not stopped", r.state.BatteryLevel, l.settings.MinimumStateOfCharge)
	default:
		ev.Action = "stop"
		l.log.Warnf("stopping charging due to %s (grid %.2fkW)", ev.Kind, ev.GridKW)
		err := l.client.StopCharging(ctx)
		l.publish(events.CommandEvent{SessionID: r.session.ID, Name: events.CommandStop, Reason: string(ev.Kind), Err: err, Time: ev.Time})
		if err != nil {
			l.log.Warnf("failed to stop charging: %v", err)
		}
	}
	l.publish(ev)
}

func (r *runner) report(now time.Time) {
	ev := r.stats.flush(r.state, r.session.ID, now)
	log := r.loop.log
	log.Infof("battery level %d/%d", ev.BatteryLevel, ev.ChargeLimit)
	log.Infof("range %.0f/%.0f km", ev.RangeKm, ev.FullRangeKm)
	log.Infof("charge added %.2fkWh", ev.EnergyAddedKWh)
	log.Infof("time to full charge is %.2f hours", ev.TimeToFullHours)
	log.Debugw("stats window", logger.Fields{
		"grid_mean_kw":   ev.GridMeanKW,
		"grid_stddev_kw": ev.GridStdDevKW,
		"amps_mean":      ev.AmpsMean,
		"samples":        ev.Samples,
	})
	r.loop.publish(ev)
}
