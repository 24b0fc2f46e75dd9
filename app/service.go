package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/drgrieve/TeslaChargingManager/api"
	"github.com/drgrieve/TeslaChargingManager/config"
	"github.com/drgrieve/TeslaChargingManager/core/control"
	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/journal"
	coremetrics "github.com/drgrieve/TeslaChargingManager/core/metrics"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	coremon "github.com/drgrieve/TeslaChargingManager/core/monitoring"
	"github.com/drgrieve/TeslaChargingManager/core/power"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
	"github.com/drgrieve/TeslaChargingManager/infra/logger"
	"github.com/drgrieve/TeslaChargingManager/infra/metrics"
	"github.com/drgrieve/TeslaChargingManager/infra/monitoring"
	"github.com/drgrieve/TeslaChargingManager/infra/mqtt"
	"github.com/drgrieve/TeslaChargingManager/infra/tesla"
	"github.com/drgrieve/TeslaChargingManager/internal/eventbus"

	// telemetry sources and metrics sinks register themselves
	_ "github.com/drgrieve/TeslaChargingManager/app/plugins"
)

var (
	// ErrNoSolar is returned by Preflight when the site is not producing.
	ErrNoSolar = errors.New("no solar generation")
	// ErrNight is returned by Preflight when the source reports night time.
	ErrNight = errors.New("not daytime at the site")
	// ErrNoSiteLocation is returned when neither the config nor the
	// telemetry source locate the site.
	ErrNoSiteLocation = errors.New("site location unknown")
	// ErrUnknownCurve is returned for curve names missing from the config.
	ErrUnknownCurve = errors.New("unknown charge curve")
)

// VehicleAPI is the account level vehicle access used by the service.
type VehicleAPI interface {
	vehicle.Client
	vehicle.Finder
	VehicleID() int64
	SetVehicleID(id int64)
}

// Status is a snapshot of the site, the vehicle and the running session.
type Status struct {
	Telemetry model.Telemetry
	Charge    *model.ChargeState
	Session   *control.Session
}

// Service owns the control loop, the trip planner and the event consumers.
type Service struct {
	cfg     *config.Config
	log     logger.Logger
	bus     eventbus.EventBus
	source  power.Source
	api     VehicleAPI
	client  *vehicle.CachedClient
	loop    *control.Loop
	planner *control.Planner

	sink    coremetrics.MetricsSink
	store   journal.Store
	broker  *mqtt.Client
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	closed  sync.Once
}

// New creates a Service from the configuration and starts the background
// event consumers.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	coremon.Init(mon)

	source, err := power.NewSource(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry source: %w", err)
	}
	svc := NewWithDeps(cfg, source, tesla.NewClient(cfg.Tesla, logger.New("tesla")))
	if err := svc.StartConsumers(); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

// NewWithDeps builds a Service around an existing source and vehicle API.
// Event consumers start with StartConsumers.
func NewWithDeps(cfg *config.Config, source power.Source, api VehicleAPI) *Service {
	bus := eventbus.New()
	client := vehicle.NewCachedClient(api, cfg.Tesla.StoppedCacheTTL())
	loop := control.NewLoop(source, client, cfg.Charging.Settings(cfg.Trip.StopPolicy()), logger.New("control"), bus)
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:     cfg,
		log:     logger.New("service"),
		bus:     bus,
		source:  source,
		api:     api,
		client:  client,
		loop:    loop,
		planner: control.NewPlanner(loop, client, logger.New("trip"), bus, cfg.Trip.CheckInterval()),
		sink:    coremetrics.NopSink{},
		store:   journal.NopStore{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Bus exposes the event bus for additional consumers.
func (s *Service) Bus() eventbus.EventBus { return s.bus }

// Loop exposes the control loop.
func (s *Service) Loop() *control.Loop { return s.loop }

func (s *Service) goWorker(fn func(ctx context.Context)) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		fn(s.ctx)
	}()
}

// StartConsumers attaches the metrics sinks, the journal and the MQTT
// publisher to the event bus.
func (s *Service) StartConsumers() error {
	sink, err := coremetrics.NewMetricsSink(s.cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink
	metrics.StartEventCollector(s.ctx, s.bus, sink)

	store, err := OpenJournal(s.cfg.Journal)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	s.store = store
	w := journal.NewWriter(store, logger.New("journal"), s.cfg.Journal.StatusEvery)
	s.goWorker(func(ctx context.Context) { w.Run(ctx, s.bus) })

	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		routes := s.Routes(s.cfg.Metrics.APIToken)
		go func() {
			if err := metrics.StartPromServer(s.ctx, addr, routes); err != nil {
				s.log.Errorf("http server: %v", err)
			}
		}()
	}

	if s.cfg.MQTT.Enabled() {
		cli, err := mqtt.Connect(s.cfg.MQTT, "mqtt_publisher")
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		s.broker = cli
		p := mqtt.NewPublisher(cli, s.cfg.MQTT, logger.New("mqtt"))
		s.goWorker(func(ctx context.Context) { p.Run(ctx, s.bus) })
	}
	return nil
}

// Routes returns the HTTP API served next to the metrics endpoint.
func (s *Service) Routes(token string) map[string]http.Handler {
	return map[string]http.Handler{
		"/api/status":   api.NewStatusHandler(s.apiStatus, token),
		"/api/journal":  api.NewJournalHandler(s.store, token),
		"/api/sessions": api.NewSessionsHandler(s.store, token),
	}
}

func (s *Service) apiStatus(ctx context.Context) (api.Status, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return api.Status{}, err
	}
	out := api.Status{Telemetry: st.Telemetry, Charge: st.Charge}
	if sess := st.Session; sess != nil {
		out.Session = &api.Session{
			ID:     sess.ID,
			Curve:  sess.Curve,
			Mode:   sess.Mode.String(),
			Active: sess.Active(),
			Reason: sess.Reason().String(),
		}
	}
	return out, nil
}

// OpenJournal opens the configured session journal.
func OpenJournal(cfg config.JournalConfig) (journal.Store, error) {
	switch cfg.Backend {
	case "none":
		return journal.NopStore{}, nil
	case "sqlite":
		return journal.NewSQLiteStore(cfg.Path)
	default:
		return journal.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	}
}

// Preflight checks the site is producing and selects the vehicle to charge.
func (s *Service) Preflight(ctx context.Context) error {
	tel, err := s.source.Telemetry(ctx)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if tel.SolarKW <= 0 {
		return ErrNoSolar
	}
	if tel.Weather != nil {
		if !tel.Weather.Daytime {
			return ErrNight
		}
		s.log.Infof("weather: %s %.1fC", tel.Weather.Description, tel.Weather.TemperatureC)
	}
	return s.SelectVehicle(ctx)
}

// SelectVehicle keeps the configured vehicle or picks the awake vehicle
// parked at the site.
func (s *Service) SelectVehicle(ctx context.Context) error {
	if id := s.api.VehicleID(); id != 0 {
		s.log.Debugf("using configured vehicle %d", id)
		return nil
	}
	site, err := s.SiteLocation(ctx)
	if err != nil {
		return err
	}
	v, err := vehicle.Select(ctx, s.api, site, s.cfg.Site.MaxDistanceM)
	if err != nil {
		return fmt.Errorf("select vehicle: %w", err)
	}
	s.api.SetVehicleID(v.ID)
	s.client.Invalidate()
	s.log.Infof("selected vehicle %s (%d)", v.DisplayName, v.ID)
	return nil
}

// SiteLocation returns the configured location, or asks the telemetry
// source when none is configured.
func (s *Service) SiteLocation(ctx context.Context) (vehicle.Location, error) {
	loc := vehicle.Location{Latitude: s.cfg.Site.Latitude, Longitude: s.cfg.Site.Longitude}
	if !loc.IsZero() {
		return loc, nil
	}
	l, ok := s.source.(power.Locator)
	if !ok {
		return loc, ErrNoSiteLocation
	}
	loc, err := l.SiteLocation(ctx)
	if err != nil {
		return loc, fmt.Errorf("site location: %w", err)
	}
	if loc.IsZero() {
		return loc, ErrNoSiteLocation
	}
	return loc, nil
}

// Curve resolves a curve name. An empty name selects the default curve.
func (s *Service) Curve(name string) (model.ChargeCurve, error) {
	if name == "" {
		name = s.cfg.Charging.DefaultCurve
	}
	c, ok := s.cfg.Charging.Curve(name)
	if !ok {
		return c, fmt.Errorf("%w: %s", ErrUnknownCurve, name)
	}
	return c, nil
}

// Curves returns the configured charge curves.
func (s *Service) Curves() []model.ChargeCurve { return s.cfg.Charging.Curves }

// Charge starts a normal session on the named curve.
func (s *Service) Charge(ctx context.Context, curveName string) (*control.Session, error) {
	curve, err := s.Curve(curveName)
	if err != nil {
		return nil, err
	}
	return s.loop.StartSession(ctx, curve, control.ModeNormal)
}

// Trip charges to percent before the vehicle leaves in the given duration.
// It blocks until the plan finishes or ctx is cancelled.
func (s *Service) Trip(ctx context.Context, in time.Duration, percent int) error {
	priority, err := s.Curve(s.cfg.Trip.PriorityCurve)
	if err != nil {
		return err
	}
	secondary, err := s.Curve(s.cfg.Trip.SecondaryCurve)
	if err != nil {
		return err
	}
	plan, err := control.NewTripPlan(time.Now(), in, percent, priority, secondary, s.cfg.Trip.Margin())
	if err != nil {
		return err
	}
	return s.planner.Run(ctx, plan)
}

// Limit sets the vehicle charge limit.
func (s *Service) Limit(ctx context.Context, percent int) error {
	if percent <= 0 || percent > 100 {
		return fmt.Errorf("charge limit %d out of range", percent)
	}
	err := s.client.SetChargeLimit(ctx, percent)
	s.bus.Publish(events.CommandEvent{Name: events.CommandSetLimit, Reason: "user", Err: err, Time: time.Now()})
	if err != nil {
		return fmt.Errorf("set charge limit: %w", err)
	}
	return nil
}

// Stop cancels the running session and waits for it to end. It reports
// false when no session was active.
func (s *Service) Stop() bool {
	sess := s.loop.Current()
	if sess == nil || !sess.Active() {
		return false
	}
	sess.Cancel()
	<-sess.Done()
	return true
}

// Status reads the site and the vehicle. A failed vehicle read leaves
// Charge nil.
func (s *Service) Status(ctx context.Context) (Status, error) {
	tel, err := s.source.Telemetry(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("telemetry: %w", err)
	}
	st := Status{Telemetry: tel, Session: s.loop.Current()}
	if cs, err := s.client.ChargeState(ctx); err != nil {
		s.log.Warnf("charge state: %v", err)
	} else {
		st.Charge = cs
	}
	return st, nil
}

// Journal returns the session journal store.
func (s *Service) Journal() journal.Store { return s.store }

// Close stops the session, drains the journal and the MQTT publisher and
// releases every connection.
func (s *Service) Close() error {
	var errs []error
	s.closed.Do(func() {
		s.Stop()
		s.bus.Close()
		s.workers.Wait()
		if d := s.bus.Dropped(); d > 0 {
			s.log.Warnf("%d events dropped by slow consumers", d)
		}
		s.cancel()
		if c, ok := s.sink.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
		errs = append(errs, s.store.Close())
		if s.broker != nil {
			s.broker.Disconnect()
		}
		if c, ok := s.source.(power.Closer); ok {
			errs = append(errs, c.Close())
		}
		coremon.Flush(2 * time.Second)
	})
	return errors.Join(errs...)
}
