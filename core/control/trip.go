package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/logger"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
	"github.com/drgrieve/TeslaChargingManager/internal/eventbus"
)

// StageKind identifies a trip stage. Stages only move forward.
type StageKind int

const (
	// StagePriority charges from surplus on the priority curve.
	StagePriority StageKind = iota + 1
	// StageMaxRate charges at the maximum rate without feedback control.
	StageMaxRate
	// StageSecondary charges from surplus on the secondary curve once the
	// target is reached.
	StageSecondary
)

func (k StageKind) String() string {
	switch k {
	case StagePriority:
		return "priority"
	case StageMaxRate:
		return "max_rate"
	case StageSecondary:
		return "secondary"
	}
	return "unknown"
}

// Stage is one step of a trip plan. Curve is nil for the max-rate stage.
type Stage struct {
	Kind  StageKind
	Curve *model.ChargeCurve
}

// TripPlan is an immutable charging plan for a departure.
type TripPlan struct {
	Deadline  time.Time
	TargetSOC int
	Stages    []Stage
}

// NewTripPlan plans charging to targetSOC before now+in, keeping margin
// before departure.
func NewTripPlan(now time.Time, in time.Duration, targetSOC int, priority, secondary model.ChargeCurve, margin time.Duration) (TripPlan, error) {
	if in <= 0 {
		return TripPlan{}, fmt.Errorf("departure must be in the future")
	}
	if targetSOC <= 0 || targetSOC > 100 {
		return TripPlan{}, fmt.Errorf("target soc %d out of range", targetSOC)
	}
	return TripPlan{
		Deadline:  now.Add(in - margin),
		TargetSOC: targetSOC,
		Stages: []Stage{
			{Kind: StagePriority, Curve: &priority},
			{Kind: StageMaxRate},
			{Kind: StageSecondary, Curve: &secondary},
		},
	}, nil
}

// Stage returns the stage of the given kind.
func (p TripPlan) Stage(kind StageKind) Stage {
	for _, s := range p.Stages {
		if s.Kind == kind {
			return s
		}
	}
	return Stage{Kind: kind}
}

// Remaining returns the time left before the deadline, never negative.
func (p TripPlan) Remaining(now time.Time) time.Duration {
	if d := p.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ProjectedMinutes estimates the minutes needed to reach targetSOC at the
// current rate, scaling the vehicle's time-to-limit estimate by the target
// and by the share of the maximum current in use.
func ProjectedMinutes(st model.ChargeState, targetSOC int) float64 {
	if st.ChargeLimitSOC <= 0 || st.ChargeCurrentRequestMax <= 0 {
		return 0
	}
	amps := st.ChargeCurrentRequest
	if amps <= 0 {
		amps = st.ChargerActualCurrent
	}
	return float64(st.MinutesToFullCharge) * float64(targetSOC) / float64(st.ChargeLimitSOC) *
		float64(amps) / float64(st.ChargeCurrentRequestMax)
}

// Planner runs a TripPlan, one session at a time.
type Planner struct {
	starter  Starter
	client   vehicle.Client
	log      logger.Logger
	bus      eventbus.EventBus
	clock    Clock
	interval time.Duration
}

// NewPlanner returns a planner checking progress every interval.
func NewPlanner(starter Starter, client vehicle.Client, log logger.Logger, bus eventbus.EventBus, interval time.Duration) *Planner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Planner{starter: starter, client: client, log: log, bus: bus, clock: realClock{}, interval: interval}
}

// SetClock overrides the time source.
func (p *Planner) SetClock(c Clock) { p.clock = c }

// trip is the mutable progress of one Planner.Run.
type trip struct {
	plan    TripPlan
	stage   StageKind
	session *Session
}

// Run executes plan until the secondary session ends, the priority session
// ends on its own, the charger stops during the max-rate stage or ctx is
// cancelled.
func (p *Planner) Run(ctx context.Context, plan TripPlan) error {
	if issued, err := vehicle.SetChargeLimitIfLower(ctx, p.client, plan.TargetSOC); err != nil {
		p.log.Warnf("set charge limit: %v", err)
	} else if issued {
		p.log.Infof("charge limit raised to %d%%", plan.TargetSOC)
		p.publish(events.CommandEvent{Name: events.CommandSetLimit, Reason: "trip", Time: p.clock.Now()})
	}

	t := &trip{plan: plan}
	if err := p.enter(ctx, t, StagePriority, model.ChargeState{}); err != nil {
		return err
	}
	defer p.endSession(t)

	for {
		var done <-chan struct{}
		if t.session != nil {
			done = t.session.Done()
		}
		select {
		case <-ctx.Done():
			p.log.Infof("trip monitoring has stopped")
			return nil
		case <-done:
			err := t.session.Wait()
			p.log.Infof("trip %s session ended: %s", t.stage, t.session.Reason())
			return err
		case <-p.clock.After(p.interval):
			finished, err := p.check(ctx, t)
			if err != nil || finished {
				return err
			}
		}
	}
}

// check evaluates progress once. It reports true when the trip is over.
func (p *Planner) check(ctx context.Context, t *trip) (bool, error) {
	st, err := p.state(ctx, t)
	if err != nil || st == nil {
		if err != nil && !errors.Is(err, vehicle.ErrUnavailable) {
			p.log.Warnf("trip charge state: %v", err)
		}
		return false, nil
	}
	if st.BatteryLevel >= t.plan.TargetSOC && t.stage != StageSecondary {
		return false, p.enter(ctx, t, StageSecondary, *st)
	}
	switch t.stage {
	case StagePriority:
		remaining := t.plan.Remaining(p.clock.Now()).Minutes()
		if remaining <= 0 || !st.IsCharging() {
			return false, nil
		}
		projected := ProjectedMinutes(*st, t.plan.TargetSOC)
		p.log.Debugf("trip needs %.1f of %.1f minutes", projected, remaining)
		if projected > remaining {
			return false, p.enter(ctx, t, StageMaxRate, *st)
		}
	case StageMaxRate:
		if !st.IsCharging() {
			p.log.Warnf("charger is %s during max rate charging", st.ChargingState)
			return true, nil
		}
		p.log.Infof("charging at maximum amps until SOC %d%% reaches %d%%", st.BatteryLevel, t.plan.TargetSOC)
	}
	return false, nil
}

// state returns the charge state last read by the running session. The
// vehicle is only queried while no session runs.
func (p *Planner) state(ctx context.Context, t *trip) (*model.ChargeState, error) {
	if t.session != nil {
		return t.session.LastState(), nil
	}
	return p.client.ChargeState(ctx)
}

// enter cancels the running session, waits for it and starts kind.
func (p *Planner) enter(ctx context.Context, t *trip, kind StageKind, st model.ChargeState) error {
	p.endSession(t)
	t.stage = kind
	now := p.clock.Now()
	ev := events.TripStageEvent{
		Stage:            int(kind),
		TargetSOC:        t.plan.TargetSOC,
		BatteryLevel:     st.BatteryLevel,
		ProjectedMinutes: ProjectedMinutes(st, t.plan.TargetSOC),
		RemainingMinutes: t.plan.Remaining(now).Minutes(),
		Deadline:         t.plan.Deadline,
		Time:             now,
	}
	p.log.Infof("trip stage %d (%s) for %d%% by %s", kind, kind, t.plan.TargetSOC, t.plan.Deadline.Format(time.Kitchen))
	p.publish(ev)

	stage := t.plan.Stage(kind)
	if stage.Curve == nil {
		amps := st.ChargeCurrentRequestMax
		err := p.client.SetChargingAmps(ctx, amps)
		p.publish(events.CommandEvent{Name: events.CommandSetAmps, Amps: amps, Reason: "trip max rate", Err: err, Time: now})
		if err != nil {
			p.log.Warnf("failed to set maximum amps: %v", err)
		}
		return nil
	}
	mode := ModeNormal
	if kind == StagePriority {
		mode = ModePriority
	}
	sess, err := p.starter.StartSession(ctx, *stage.Curve, mode)
	if err != nil {
		return fmt.Errorf("start %s stage: %w", kind, err)
	}
	t.session = sess
	return nil
}

func (p *Planner) endSession(t *trip) {
	if t.session == nil {
		return
	}
	t.session.Cancel()
	if err := t.session.Wait(); err != nil {
		p.log.Warnf("%s session ended with error: %v", t.stage, err)
	}
	t.session = nil
}

func (p *Planner) publish(ev eventbus.Event) {
	if p.bus != nil {
		p.bus.Publish(ev)
	}
}
